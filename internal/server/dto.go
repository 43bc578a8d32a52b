package server

import (
	"hamasa/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Identifier string `json:"identifier" minLength:"1" doc:"Email address or phone number"`
	Password   string `json:"password" minLength:"1"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" minLength:"1"`
}

type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" minLength:"1"`
}

type ResetPasswordRequest struct {
	Identifier  string `json:"identifier" minLength:"1"`
	OTP         string `json:"otp" minLength:"1"`
	NewPassword string `json:"new_password" minLength:"1"`
}

type ChangePasswordRequest struct {
	PhoneNumber string `json:"phone_number" minLength:"1"`
	OTP         string `json:"otp" minLength:"1"`
	NewPassword string `json:"new_password" minLength:"1"`
}

type PhoneRequest struct {
	PhoneNumber string `json:"phone_number" minLength:"1"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" minLength:"1"`
	OTP         string `json:"otp" minLength:"1"`
}

type CreateStaffRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Role        string `json:"role" enum:"super_admin,reviewer,data_clerk,org_admin,org_user,ml_service"`
	Password    string `json:"password,omitempty" doc:"Generated and returned once when omitted"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

func (r CreateStaffRequest) options() engine.StaffCreateOptions {
	return engine.StaffCreateOptions{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email,
		Gender:      r.Gender,
		Role:        r.Role,
		Password:    r.Password,
		IsActive:    r.IsActive == nil || *r.IsActive,
	}
}

type UpdateStaffRequest struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Role        *string `json:"role,omitempty" enum:"super_admin,reviewer,data_clerk,org_admin,org_user,ml_service"`
	IsActive    *bool   `json:"is_active,omitempty" doc:"false archives the account"`
}

type CreateClientRequest struct {
	Name        string `json:"name_of_organisation"`
	Country     string `json:"country"`
	FirstName   string `json:"first_name" doc:"Contact person, becomes the org_admin"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type UpdateClientRequest struct {
	Name        *string `json:"name_of_organisation,omitempty"`
	Country     *string `json:"country,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type CreateClientUserRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty" enum:"org_admin,org_user,reviewer,data_clerk"`
	Password    string `json:"password,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type UpdateClientUserRequest struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`
	Role        *string `json:"role,omitempty" enum:"org_admin,org_user,reviewer,data_clerk"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type ThematicAreaRequest struct {
	Area                 string   `json:"area"`
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	MonitoringObjectives []string `json:"monitoring_objectives,omitempty"`
}

func (r ThematicAreaRequest) input() engine.ThematicAreaInput {
	return engine.ThematicAreaInput{Area: r.Area, Title: r.Title, Description: r.Description, MonitoringObjectives: r.MonitoringObjectives}
}

type UpdateThematicAreaRequest struct {
	Area                 *string  `json:"area,omitempty"`
	Title                *string  `json:"title,omitempty"`
	Description          *string  `json:"description,omitempty"`
	MonitoringObjectives []string `json:"monitoring_objectives,omitempty"`
}

type CreateProjectRequest struct {
	Title                 string                `json:"title"`
	Description           string                `json:"description,omitempty"`
	ClientID              string                `json:"client_id,omitempty" doc:"Defaults to the caller's own client"`
	CategoryIDs           []string              `json:"category_ids,omitempty"`
	ThematicAreas         []ThematicAreaRequest `json:"thematic_areas,omitempty"`
	CollaboratorIDs       []string              `json:"collaborator_ids,omitempty"`
	MediaSourceIDs        []string              `json:"media_source_ids,omitempty"`
	ReportAvenueIDs       []string              `json:"report_avenue_ids,omitempty"`
	ReportTimeIDs         []string              `json:"report_time_ids,omitempty"`
	ReportConsultationIDs []string              `json:"report_consultation_ids,omitempty"`
}

func (r CreateProjectRequest) options() engine.ProjectCreateOptions {
	areas := make([]engine.ThematicAreaInput, 0, len(r.ThematicAreas))
	for _, ta := range r.ThematicAreas {
		areas = append(areas, ta.input())
	}
	return engine.ProjectCreateOptions{
		Title:           r.Title,
		Description:     r.Description,
		ClientID:        r.ClientID,
		CategoryIDs:     r.CategoryIDs,
		ThematicAreas:   areas,
		CollaboratorIDs: r.CollaboratorIDs,
		MediaSourceIDs:  r.MediaSourceIDs,
		AvenueIDs:       r.ReportAvenueIDs,
		TimeIDs:         r.ReportTimeIDs,
		ConsultationIDs: r.ReportConsultationIDs,
	}
}

// UpdateProjectRequest replaces each id list that is present; absent lists are kept.
type UpdateProjectRequest struct {
	Title                 *string  `json:"title,omitempty"`
	Description           *string  `json:"description,omitempty"`
	CategoryIDs           []string `json:"category_ids,omitempty"`
	ThematicAreaIDs       []string `json:"thematic_area_ids,omitempty"`
	CollaboratorIDs       []string `json:"collaborator_ids,omitempty"`
	MediaSourceIDs        []string `json:"media_source_ids,omitempty"`
	ReportAvenueIDs       []string `json:"report_avenue_ids,omitempty"`
	ReportTimeIDs         []string `json:"report_time_ids,omitempty"`
	ReportConsultationIDs []string `json:"report_consultation_ids,omitempty"`
}

func (r UpdateProjectRequest) options() engine.ProjectUpdateOptions {
	return engine.ProjectUpdateOptions{
		Title:           r.Title,
		Description:     r.Description,
		CategoryIDs:     r.CategoryIDs,
		ThematicAreaIDs: r.ThematicAreaIDs,
		CollaboratorIDs: r.CollaboratorIDs,
		MediaSourceIDs:  r.MediaSourceIDs,
		AvenueIDs:       r.ReportAvenueIDs,
		TimeIDs:         r.ReportTimeIDs,
		ConsultationIDs: r.ReportConsultationIDs,
	}
}

type StatusRequest struct {
	Status  string `json:"status" minLength:"1"`
	Action  string `json:"action,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (r StatusRequest) options() engine.TransitionOptions {
	return engine.TransitionOptions{Status: r.Status, Action: r.Action, Comment: r.Comment}
}

type MLImportRequest struct {
	UID    string `json:"uid" doc:"Project id"`
	CSVURL string `json:"csv_url"`
}

type ReportRequest struct {
	PublicationDate     string         `json:"publication_date"`
	Title               string         `json:"title"`
	Content             string         `json:"content,omitempty"`
	Source              string         `json:"source,omitempty"`
	MediaCategory       string         `json:"media_category,omitempty"`
	MediaFormat         string         `json:"media_format,omitempty"`
	ThematicArea        string         `json:"thematic_area,omitempty"`
	ThematicDescription string         `json:"thematic_description,omitempty"`
	Objectives          []any          `json:"objectives,omitempty"`
	Link                string         `json:"link,omitempty"`
	ExtraMetadata       map[string]any `json:"extra_metadata,omitempty"`
}

func (r ReportRequest) input() engine.ReportInput {
	return engine.ReportInput{
		PublicationDate:     r.PublicationDate,
		Title:               r.Title,
		Content:             r.Content,
		Source:              r.Source,
		MediaCategory:       r.MediaCategory,
		MediaFormat:         r.MediaFormat,
		ThematicArea:        r.ThematicArea,
		ThematicDescription: r.ThematicDescription,
		Objectives:          r.Objectives,
		Link:                r.Link,
		ExtraMetadata:       r.ExtraMetadata,
	}
}

type UpdateReportRequest struct {
	PublicationDate     *string        `json:"publication_date,omitempty"`
	Title               *string        `json:"title,omitempty"`
	Content             *string        `json:"content,omitempty"`
	Source              *string        `json:"source,omitempty"`
	MediaCategory       *string        `json:"media_category,omitempty"`
	MediaFormat         *string        `json:"media_format,omitempty"`
	ThematicArea        *string        `json:"thematic_area,omitempty"`
	ThematicDescription *string        `json:"thematic_description,omitempty"`
	Objectives          []any          `json:"objectives,omitempty"`
	Link                *string        `json:"link,omitempty"`
	ExtraMetadata       map[string]any `json:"extra_metadata,omitempty"`
}

func (r UpdateReportRequest) options() engine.ReportUpdateOptions {
	return engine.ReportUpdateOptions{
		PublicationDate:     r.PublicationDate,
		Title:               r.Title,
		Content:             r.Content,
		Source:              r.Source,
		MediaCategory:       r.MediaCategory,
		MediaFormat:         r.MediaFormat,
		ThematicArea:        r.ThematicArea,
		ThematicDescription: r.ThematicDescription,
		Objectives:          r.Objectives,
		Link:                r.Link,
		ExtraMetadata:       r.ExtraMetadata,
	}
}

type CatalogRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateCatalogRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type MediaSourceRequest struct {
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
}

type UpdateMediaSourceRequest struct {
	Name       *string `json:"name,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
}
