package domain

// InterviewScene is an immutable catalog entry describing an interview topic.
type InterviewScene struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description" yaml:"description"`
	Icon           string `json:"icon" yaml:"icon"`
	PromptTemplate string `json:"prompt_template" yaml:"prompt"`
}
