package gemini

type ImageInput struct {
	DataBase64 string
	MimeType   string
}

type EditResult struct {
	DataBase64 string
	MimeType   string
}
