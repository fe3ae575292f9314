package model

// TokenRequest exchanges a configured API key for a bearer token.
type TokenRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// TokenResponse carries the issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// SubmitImageRequest is the JSON alternative to a multipart upload:
// the image is fetched by the extraction model from a reachable URL.
type SubmitImageRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}

// ShareRequest emails the consolidated record to a recipient.
type ShareRequest struct {
	Email string `json:"email" binding:"required,email"`
}
