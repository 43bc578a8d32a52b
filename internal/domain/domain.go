package domain

type StaffUser struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Role         Role   `json:"role" enum:"super_admin,reviewer,data_clerk,org_admin,org_user,ml_service"`
	IsActive     bool   `json:"is_active"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type ClientUser struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role" enum:"org_admin,org_user,reviewer,data_clerk"`
	IsActive     bool   `json:"is_active"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Client struct {
	ID            string `json:"id"`
	Name          string `json:"name_of_organisation"`
	Country       string `json:"country"`
	ContactPerson string `json:"contact_person"`
	PhoneNumber   string `json:"phone_number"`
	Email         string `json:"email"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type StaffClientAssignment struct {
	ID          string `json:"id"`
	StaffUserID string `json:"staff_user_id"`
	ClientID    string `json:"client_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ClientID    string        `json:"client_id"`
	Status      ProjectStatus `json:"status" enum:"draft,submitted,review,in_progress,active,completed,archived"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

// ProjectDetail is a project with its linked catalog entries and collaborators.
type ProjectDetail struct {
	Project
	Categories          []CatalogItem  `json:"categories"`
	ThematicAreas       []ThematicArea `json:"thematic_areas"`
	MediaSources        []MediaSource  `json:"media_sources"`
	ReportAvenues       []CatalogItem  `json:"report_avenues"`
	ReportTimes         []CatalogItem  `json:"report_times"`
	ReportConsultations []CatalogItem  `json:"report_consultations"`
	Collaborators       []ClientUser   `json:"collaborators"`
}

// ProgressEntry is one row of a project or report progress log.
type ProgressEntry struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	ReportID       string   `json:"report_id,omitempty"`
	StageNo        int      `json:"stage_no"`
	OwnerID        string   `json:"owner_id"`
	OwnerType      UserType `json:"owner_type"`
	PreviousStatus string   `json:"previous_status,omitempty"`
	CurrentStatus  string   `json:"current_status"`
	Action         string   `json:"action,omitempty"`
	Comment        string   `json:"comment,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type CatalogItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ThematicArea struct {
	ID                   string   `json:"id"`
	Area                 string   `json:"area"`
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	MonitoringObjectives []string `json:"monitoring_objectives"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
	UpdatedAt            string   `json:"updated_at" format:"date-time"`
	// OwnerProjectID is set for areas created inline with a project. They are
	// archived together with it.
	OwnerProjectID       string   `json:"-"`
}

type MediaSource struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Report struct {
	ID                  string         `json:"id"`
	ProjectID           string         `json:"project_id"`
	PublicationDate     string         `json:"publication_date" format:"date-time"`
	Title               string         `json:"title"`
	Content             string         `json:"content,omitempty"`
	Source              string         `json:"source,omitempty"`
	MediaCategory       string         `json:"media_category,omitempty"`
	MediaFormat         string         `json:"media_format,omitempty"`
	ThematicArea        string         `json:"thematic_area,omitempty"`
	ThematicDescription string         `json:"thematic_description,omitempty"`
	Objectives          []any          `json:"objectives"`
	Link                string         `json:"link,omitempty"`
	Status              ReportStatus   `json:"status" enum:"Unverified,Verified,Rejected"`
	ExtraMetadata       map[string]any `json:"extra_metadata"`
	CreatedAt           string         `json:"created_at" format:"date-time"`
	UpdatedAt           string         `json:"updated_at" format:"date-time"`
}

type MLResult struct {
	ProjectID string            `json:"project_id"`
	RowNumber int               `json:"row_number"`
	Data      map[string]string `json:"data"`
}

type Dashboard struct {
	Summary       DashboardSummary    `json:"summary"`
	MediaCoverage []MediaCoverage     `json:"media_coverage"`
	RecentReports []RecentReport      `json:"recent_reports"`
	Monitoring    []MonitoringItem    `json:"monitoring"`
	ReportStatus  ReportStatusSummary `json:"report_status_summary"`
}

type DashboardSummary struct {
	TotalClients      int `json:"total_clients"`
	TotalProjects     int `json:"total_projects"`
	ActiveProjects    int `json:"active_projects"`
	TotalMediaSources int `json:"total_media_sources"`
}

type MediaCoverage struct {
	Name            string  `json:"name"`
	CoveragePercent float64 `json:"coverage_percent"`
	SourceCount     int     `json:"source_count"`
}

type RecentReport struct {
	ClientName string       `json:"client_name"`
	Title      string       `json:"title"`
	Date       string       `json:"date" format:"date-time"`
	Status     ReportStatus `json:"status"`
}

type MonitoringItem struct {
	Category string `json:"category"`
	Daily    int    `json:"daily"`
	Weekly   int    `json:"weekly"`
	Monthly  int    `json:"monthly"`
}

type ReportStatusSummary struct {
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
	Rejected   int `json:"rejected"`
}
