package kanso

// User is an account, returned by register and login.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"` // "user" or "hr"
}

// Profile is the flat profile document.
type Profile struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role,omitempty"`
	Headline     string   `json:"headline"`
	Bio          string   `json:"bio"`
	Phone        string   `json:"phone"`
	Location     string   `json:"location"`
	LinkedIn     string   `json:"linkedin"`
	GitHub       string   `json:"github"`
	Portfolio    string   `json:"portfolio"`
	Skills       []string `json:"skills"`
	Experience   string   `json:"experience"`
	Education    string   `json:"education"`
	ResumeText   string   `json:"resume_text"`
	ProfileImage string   `json:"profile_image"`
	CompanyName  string   `json:"company_name"`
	CompanyRole  string   `json:"company_role"`
	CompanyDesc  string   `json:"company_desc"`
}

// Job is one entry in the swipe feed.
type Job struct {
	ID          string   `json:"id"`
	Company     string   `json:"company"`
	Logo        string   `json:"logo"`
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	Type        string   `json:"type"`
	Salary      string   `json:"salary"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Source      string   `json:"source"` // "external" or "kanso"
	PostedBy    string   `json:"posted_by,omitempty"`
}

// Application statuses.
const (
	StatusSaved      = "saved"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusApplied    = "applied"
)

// Application is a saved job with its tailored resume state.
type Application struct {
	ID             string   `json:"id"`
	JobID          string   `json:"job_id"`
	JobTitle       string   `json:"job_title"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	TailoredResume string   `json:"tailored_resume"`
	CreatedAt      string   `json:"created_at,omitempty"`
	Company        string   `json:"company"`
	Logo           string   `json:"logo"`
	Location       string   `json:"location"`
	Salary         string   `json:"salary"`
	Type           string   `json:"type,omitempty"`
	Tags           []string `json:"tags"`
	Source         string   `json:"source"`
}

// ApplyResult reports an application submission.
type ApplyResult struct {
	Message    string `json:"message"`
	IsInternal bool   `json:"is_internal"`
}

// HRPersonality describes the recruiter persona attached to a company.
type HRPersonality struct {
	ID              string   `json:"id"`
	Company         string   `json:"company"`
	HRName          string   `json:"hr_name"`
	Tone            string   `json:"tone"`
	CommonQuestions []string `json:"common_questions"`
}

// ChatMessage is one message in a recruiter chat.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ChatReply is the recruiter's answer to a sent message.
type ChatReply struct {
	Reply   string `json:"reply"`
	HRName  string `json:"hr_name"`
	Company string `json:"company"`
}

// Feedback is a scored critique of one practice interview.
type Feedback struct {
	ID              string   `json:"id"`
	Score           string   `json:"score"` // e.g. "7/10", "N/A"
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Transcript      string   `json:"transcript"`
	DurationSeconds string   `json:"duration_seconds"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

// Notification is one inbox entry.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	LinkPage  string `json:"link_page"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at,omitempty"`
}

// PostJob is a job listing submitted by an HR account.
type PostJob struct {
	UserID      string   `json:"user_id"`
	Company     string   `json:"company"`
	Logo        string   `json:"logo,omitempty"`
	Title       string   `json:"title"`
	Location    string   `json:"location,omitempty"`
	Type        string   `json:"type,omitempty"`
	Salary      string   `json:"salary,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}
