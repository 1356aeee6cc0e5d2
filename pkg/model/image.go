package model

// MaxImages is the number of chart slots offered by the form.
const MaxImages = 5

// EncodedImage is an uploaded chart converted for inline submission to the model.
type EncodedImage struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mimeType"`
}
