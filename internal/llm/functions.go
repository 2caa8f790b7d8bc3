package llm

import "encoding/json"

// Function names the dispatcher switches on.
const (
	FuncSuicidalMention   = "handle_suicidal_mention"
	FuncSuggestAssessment = "suggest_assessment"
)

// SuicidalMentionArgs are the arguments of handle_suicidal_mention.
type SuicidalMentionArgs struct {
	Message        string `json:"message"`
	HotlineNumber  string `json:"hotline_number"`
	Recommendation string `json:"recommendation"`
}

// SuggestAssessmentArgs are the arguments of suggest_assessment.
type SuggestAssessmentArgs struct {
	AssessmentID   string `json:"assessment_id"`
	AssessmentName string `json:"assessment_name"`
	Reason         string `json:"reason"`
}

// SafetyFunctions returns the two functions offered to the model in voice mode.
func SafetyFunctions() []Function {
	return []Function{
		{
			Name:        FuncSuicidalMention,
			Description: "Responds to mentions of suicide or self harm in a conversation by providing a suicide hotline and recommending immediate in-person therapy.",
			Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["message", "hotline_number", "recommendation"],
  "properties": {
    "message": {"type": "string", "description": "The user's message that may contain mentions of suicide or self harm."},
    "hotline_number": {"type": "string", "description": "The phone number for the suicide hotline."},
    "recommendation": {"type": "string", "description": "Message recommending the user to seek an in-person therapist."}
  },
  "additionalProperties": false
}`),
		},
		{
			Name:        FuncSuggestAssessment,
			Description: "Suggests a standardized self-assessment (e.g., PHQ-9 or GAD-7) based on user’s symptoms.",
			Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["assessment_id", "assessment_name", "reason"],
  "properties": {
    "assessment_id": {"type": "string", "description": "The UUID of the assessment (e.g., PHQ-9 or GAD-7)."},
    "assessment_name": {"type": "string", "description": "The name of the assessment (e.g., PHQ-9)."},
    "reason": {"type": "string", "description": "The reason this assessment is being recommended based on the user's recent messages."}
  },
  "additionalProperties": false
}`),
		},
	}
}
