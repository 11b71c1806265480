package model

import "time"

type Survey struct {
	ID          int        `json:"id,omitempty"`
	Version     int        `json:"version,omitempty"`
	OwnerID     int        `json:"ownerId,omitempty"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	IsPublished bool       `json:"isPublished"`
	IsAnonymous bool       `json:"isAnonymous"`
	IsPublic    bool       `json:"isPublic"`
	IsArchived  bool       `json:"isArchived"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	Questions   []Question `json:"questions,omitempty" validate:"dive"`
	Submitted   bool       `json:"submitted,omitempty"`
}

// Active reports whether the survey accepts responses at the given instant.
func (s *Survey) Active(now time.Time) bool {
	if !s.IsPublished || s.IsArchived {
		return false
	}
	if s.StartsAt != nil && s.StartsAt.After(now) {
		return false
	}
	if s.EndsAt != nil && s.EndsAt.Before(now) {
		return false
	}
	return true
}

// Question returns the question with the given id, or nil.
func (s *Survey) Question(id int) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

type Question struct {
	ID         int              `json:"id,omitempty"`
	SurveyID   int              `json:"surveyId,omitempty"`
	Text       string           `json:"text" validate:"required"`
	Type       QuestionType     `json:"type" validate:"required,questiontype"`
	IsRequired bool             `json:"isRequired"`
	HasOther   bool             `json:"hasOther"`
	Position   int              `json:"position"`
	Options    []QuestionOption `json:"options,omitempty" validate:"dive"`
}

// Option returns the option with the given id, or nil.
func (q *Question) Option(id int) *QuestionOption {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

type QuestionOption struct {
	ID         int    `json:"id,omitempty"`
	QuestionID int    `json:"questionId,omitempty"`
	Text       string `json:"text" validate:"required"`
	Position   int    `json:"position"`
}

type Response struct {
	ID              int       `json:"id"`
	SurveyID        int       `json:"surveyId"`
	UserID          *int      `json:"userId"`
	RespondentEmail *string   `json:"respondentEmail"`
	SubmittedAt     time.Time `json:"submittedAt"`
	IPAddress       *string   `json:"ipAddress,omitempty"`
	UserAgent       *string   `json:"userAgent,omitempty"`
	Answers         []Answer  `json:"answers"`
}

type Answer struct {
	ID                int    `json:"-"`
	ResponseID        int    `json:"-"`
	QuestionID        int    `json:"questionId"`
	Value             string `json:"value"`
	SelectedOptionIDs []int  `json:"selectedOptionIds,omitempty"`
}

type SelectedOption struct {
	ResponseID int
	QuestionID int
	OptionID   int
}

type SurveyAssignment struct {
	ID         int       `json:"id"`
	SurveyID   int       `json:"surveyId"`
	UserID     int       `json:"userId"`
	Username   string    `json:"username,omitempty"`
	IsRemoved  bool      `json:"isRemoved"`
	AssignedAt time.Time `json:"assignedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type AnonymousSurveyResponse struct {
	SurveyID    int
	UserID      int
	SubmittedAt time.Time
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Caller is the identity behind a request. A nil *Caller is an anonymous request.
type Caller struct {
	ID    int
	Email string
	Role  string
}

// Tally counts how many responses selected each option of a choice question.
type Tally struct {
	QuestionID int    `json:"questionId"`
	OptionID   int    `json:"optionId"`
	OptionText string `json:"optionText"`
	Count      int    `json:"count"`
}
