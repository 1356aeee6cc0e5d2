package model

// Labels are the page title and subtitle shown by the form.
type Labels struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

func DefaultLabels() Labels {
	return Labels{
		Title:    "Skyalgo.Ai",
		Subtitle: "Upload chart data stream for AI-powered trading analysis.",
	}
}
