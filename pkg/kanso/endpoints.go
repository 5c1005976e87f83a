package kanso

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Register creates an account, or returns the existing one for the
// email. Role is "user" or "hr".
func (c *Client) Register(ctx context.Context, name, email, role string) (*User, error) {
	if role == "" {
		role = "user"
	}
	var user User
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, map[string]string{
		"name": name, "email": email, "role": role,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login looks an account up by email.
func (c *Client) Login(ctx context.Context, email string) (*User, error) {
	var user User
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, map[string]string{"email": email}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches a user's profile.
func (c *Client) Profile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(userID), nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile replaces a user's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, userID string, profile Profile) error {
	return c.do(ctx, http.MethodPut, "/profile/"+url.PathEscape(userID), nil, profile, nil)
}

// Jobs returns the swipe feed: every job the user has not swiped yet.
func (c *Client) Jobs(ctx context.Context, userID string) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(userID), nil, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SwipeRight saves a job as an application.
func (c *Client) SwipeRight(ctx context.Context, userID string, job Job) error {
	return c.do(ctx, http.MethodPost, "/swipe-right", nil, map[string]string{
		"user_id":     userID,
		"job_id":      job.ID,
		"job_title":   job.Title,
		"description": job.Description,
	}, nil)
}

// SwipeLeft dismisses a job from the feed.
func (c *Client) SwipeLeft(ctx context.Context, userID string, job Job) error {
	return c.do(ctx, http.MethodPost, "/swipe-left", nil, map[string]string{
		"user_id":     userID,
		"job_id":      job.ID,
		"job_title":   job.Title,
		"description": job.Description,
	}, nil)
}

// Dashboard lists the user's applications, newest first.
func (c *Client) Dashboard(ctx context.Context, userID string) ([]Application, error) {
	var apps []Application
	if err := c.do(ctx, http.MethodGet, "/dashboard/"+url.PathEscape(userID), nil, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Application fetches one application with its job context.
func (c *Client) Application(ctx context.Context, appID string) (*Application, error) {
	var app Application
	if err := c.do(ctx, http.MethodGet, "/application/"+url.PathEscape(appID), nil, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApplication removes an application and its chat history.
func (c *Client) DeleteApplication(ctx context.Context, appID string) error {
	return c.do(ctx, http.MethodDelete, "/application/"+url.PathEscape(appID), nil, nil, nil)
}

// SetApplicationStatus moves an application between saved, processing,
// ready and applied.
func (c *Client) SetApplicationStatus(ctx context.Context, appID, status string) error {
	query := url.Values{"status": {status}}
	return c.do(ctx, http.MethodPatch, "/application/"+url.PathEscape(appID)+"/status", query, nil, nil)
}

// SetNotes replaces the free-form notes on an application.
func (c *Client) SetNotes(ctx context.Context, appID, notes string) error {
	return c.do(ctx, http.MethodPut, "/application/"+url.PathEscape(appID)+"/notes", nil,
		map[string]string{"notes": notes}, nil)
}

// Apply submits the application. Internal listings notify the recruiter
// who posted them.
func (c *Client) Apply(ctx context.Context, appID string) (*ApplyResult, error) {
	var result ApplyResult
	if err := c.do(ctx, http.MethodPost, "/application/"+url.PathEscape(appID)+"/apply", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateResume starts tailored resume generation for an application.
// Progress is observed by polling the application status.
func (c *Client) GenerateResume(ctx context.Context, appID, userID string) error {
	query := url.Values{"user_id": {userID}}
	return c.do(ctx, http.MethodPost, "/generate-resume/"+url.PathEscape(appID), query, nil, nil)
}

// WaitForResume polls until generation leaves the processing state and
// returns the final application. It respects ctx for cancellation.
func (c *Client) WaitForResume(ctx context.Context, appID string, interval time.Duration) (*Application, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		app, err := c.Application(ctx, appID)
		if err != nil {
			return nil, err
		}
		if app.Status != StatusProcessing {
			return app, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ResumePDF compiles and downloads the tailored resume as PDF bytes.
func (c *Client) ResumePDF(ctx context.Context, appID string) ([]byte, error) {
	return c.raw(ctx, "/application/"+url.PathEscape(appID)+"/resume-pdf")
}

// HRPersonality looks up the recruiter persona for a company.
// A company without one yields (nil, nil).
func (c *Client) HRPersonality(ctx context.Context, company string) (*HRPersonality, error) {
	// The backend returns a JSON null for unknown companies, so decode
	// through a pointer.
	var personality *HRPersonality
	if err := c.do(ctx, http.MethodGet, "/hr-personalities/"+url.PathEscape(company), nil, nil, &personality); err != nil {
		return nil, err
	}
	return personality, nil
}

// ChatHistory returns all recruiter chat messages for an application,
// oldest first.
func (c *Client) ChatHistory(ctx context.Context, appID string) ([]ChatMessage, error) {
	var msgs []ChatMessage
	if err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(appID), nil, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendChat sends one message to the recruiter and returns the reply.
func (c *Client) SendChat(ctx context.Context, appID, userID, message string) (*ChatReply, error) {
	var reply ChatReply
	err := c.do(ctx, http.MethodPost, "/chat", nil, map[string]string{
		"application_id": appID,
		"user_id":        userID,
		"message":        message,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// SubmitFeedback posts an interview transcript for a scored critique.
func (c *Client) SubmitFeedback(ctx context.Context, appID, userID, transcript string, duration time.Duration) (*Feedback, error) {
	var feedback Feedback
	err := c.do(ctx, http.MethodPost, "/interview/feedback", nil, map[string]any{
		"application_id":   appID,
		"user_id":          userID,
		"transcript":       transcript,
		"duration_seconds": int(duration.Seconds()),
	}, &feedback)
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

// FeedbackHistory lists past critiques for an application, newest
// first.
func (c *Client) FeedbackHistory(ctx context.Context, appID string) ([]Feedback, error) {
	var feedbacks []Feedback
	if err := c.do(ctx, http.MethodGet, "/interview/feedback/"+url.PathEscape(appID), nil, nil, &feedbacks); err != nil {
		return nil, err
	}
	return feedbacks, nil
}

// Notifications returns the user's most recent notifications.
func (c *Client) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	var notes []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications/"+url.PathEscape(userID), nil, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, notifID string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(notifID)+"/read", nil, nil, nil)
}

// MarkAllNotificationsRead marks every unread notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/notifications/read-all/"+url.PathEscape(userID), nil, nil, nil)
}

// PostJobListing publishes a job listing from an HR account and
// returns the new job's id.
func (c *Client) PostJobListing(ctx context.Context, listing PostJob) (string, error) {
	var result struct {
		Message string `json:"message"`
		JobID   string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/hr/post-job", nil, listing, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// MyJobListings lists the jobs an HR account has posted.
func (c *Client) MyJobListings(ctx context.Context, userID string) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/hr/my-jobs/"+url.PathEscape(userID), nil, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DeleteJobListing removes a posted job. The owning HR user id is
// required.
func (c *Client) DeleteJobListing(ctx context.Context, jobID, userID string) error {
	query := url.Values{"user_id": {userID}}
	return c.do(ctx, http.MethodDelete, "/hr/job/"+url.PathEscape(jobID), query, nil, nil)
}
