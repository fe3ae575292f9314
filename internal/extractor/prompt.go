package extractor

import (
	"encoding/json"

	"github.com/rxlens/rxlens-api/internal/model"
)

const systemPrompt = "You are a medical assistant that extracts structured data from prescription images. " +
	"Respond only with valid JSON based on the user's instructions. " +
	"Be thorough and accurate in your extraction."

const baseInstruction = `You are shown a prescription image. Extract detailed and structured medical information and return ONLY a well-formatted JSON object using the exact schema below:

{
"pharmacy_or_doctor_name": "name of the doctor or pharmacy as seen in the image",
"title_or_doctor_details": "title or medical qualifications of the doctor",
"contact_details": "phone number, email, or any other contact information",
"date": "date of the prescription if visible",
"address": "address found in the image",
"rx_number": "prescription number found",
"store_number": "store number found",
"medicines_names": [
  {
  "medicine_name": "individual medicine name found",
  "description": "dosage instructions. If vague or missing, infer from context. Reconstruct clearly using medical knowledge. For example: 'Take one (1x) tablet in the morning and one (1x) at night for five (5) days.'",
  "qty": "quantity found. If not present, estimate based on dosage duration. For example: '60 tablets for 2 per day for 30 days'.",
  "side_effects": "any mentioned side effects. If missing, include general known side effects for the medicine."
  }
]
}
`

const strictRules = `
STRICT RULES:
- Each medicine must be a separate object in the medicines_names array
- Use the word "none" for any field not visible or inferable from the image
- Use clear and full-sentence structure for description, qty, and side_effects
- Do NOT output anything except the JSON object. No commentary, no explanations
`

const contextInstructions = `
INSTRUCTIONS:
- If the new image contains information that complements or updates the existing data, merge them intelligently
- If you find conflicting information, prioritize the information from the current image
- If a field is missing in the current image but exists in context, preserve the context value
- For medicines, add new medicines to the existing list, but avoid duplicates
- Update existing medicine information if the current image provides more detail
`

// buildInstruction assembles the user prompt. When the accumulated
// record carries real data it is embedded so the model extracts with
// awareness of what earlier images already established.
func buildInstruction(contextRecord *model.PrescriptionRecord) string {
	if contextRecord != nil && contextRecord.HasData() {
		ctxJSON, err := json.MarshalIndent(contextRecord, "", "  ")
		if err == nil {
			return baseInstruction +
				"\nCONTEXT: You have access to previously extracted information:\n" +
				string(ctxJSON) + "\n" + contextInstructions
		}
	}
	return baseInstruction + strictRules
}
