package email

import (
	"context"
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/rxlens/rxlens-api/internal/config"
	"github.com/rxlens/rxlens-api/internal/model"
)

// Service mails a consolidated prescription record to a recipient.
type Service interface {
	SendRecordSummary(ctx context.Context, to string, record model.PrescriptionRecord) error
}

type service struct {
	dialer *gomail.Dialer
	from   string
}

func NewService(cfg config.SMTPConfig) Service {
	return &service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *service) SendRecordSummary(ctx context.Context, to string, record model.PrescriptionRecord) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your consolidated prescription record")
	m.SetBody("text/plain", renderSummary(record))

	// gomail dials synchronously; honor cancellation before the dial.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send record summary: %w", err)
	}
	return nil
}

func renderSummary(record model.PrescriptionRecord) string {
	var b strings.Builder

	writeLine := func(label, value string) {
		if value != model.Sentinel {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	writeLine("Pharmacy/Doctor", record.PharmacyOrDoctorName)
	writeLine("Details", record.TitleOrDoctorDetails)
	writeLine("Contact", record.ContactDetails)
	writeLine("Date", record.Date)
	writeLine("Address", record.Address)
	writeLine("Rx number", record.RxNumber)
	writeLine("Store number", record.StoreNumber)

	b.WriteString("\nMedicines:\n")
	for i, med := range record.Medicines {
		if med.IsPlaceholder() {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, med.Name)
		if med.Description != model.Sentinel {
			fmt.Fprintf(&b, "   Dosage: %s\n", med.Description)
		}
		if med.Quantity != model.Sentinel {
			fmt.Fprintf(&b, "   Quantity: %s\n", med.Quantity)
		}
		if med.SideEffects != model.Sentinel {
			fmt.Fprintf(&b, "   Side effects: %s\n", med.SideEffects)
		}
	}

	return b.String()
}
