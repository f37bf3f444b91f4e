package model

import "time"

// Profile is the single admin profile record.
type Profile struct {
	ID        int64   `json:"id"`
	FullName  string  `json:"fullName"`
	Headline  string  `json:"headline"`
	Bio       string  `json:"bio"`
	Location  *string `json:"location"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
	ResumeURL *string `json:"resumeUrl"`
	UpdatedAt string  `json:"updatedAt"`
	CreatedAt string  `json:"createdAt"`
}

// Skill is a single skill entry.
type Skill struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	Description  *string `json:"description"`
	Category     string  `json:"category"`
	Proficiency  int64   `json:"proficiency"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	UpdatedAt    string  `json:"updatedAt"`
	CreatedAt    string  `json:"createdAt"`
}

// Project is a portfolio project. SkillIDs is an unordered relation to Skill ids.
type Project struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Summary      string  `json:"summary"`
	Details      string  `json:"details"`
	ProjectType  string  `json:"projectType"`
	RepoURL      *string `json:"repoUrl"`
	LiveURL      *string `json:"liveUrl"`
	Featured     bool    `json:"featured"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	SkillIDs     []int64 `json:"skillIds"`
	UpdatedAt    string  `json:"updatedAt"`
	CreatedAt    string  `json:"createdAt"`
}

// Post is a blog post.
type Post struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Excerpt         string  `json:"excerpt"`
	MarkdownContent string  `json:"markdownContent"`
	Published       bool    `json:"published"`
	PublishedAt     *string `json:"publishedAt"`
	ThumbnailURL    *string `json:"thumbnailUrl"`
	UpdatedAt       string  `json:"updatedAt"`
	CreatedAt       string  `json:"createdAt"`
}

// Social is a social link.
type Social struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	ImageURL  *string `json:"imageUrl"`
	UpdatedAt string  `json:"updatedAt"`
	CreatedAt string  `json:"createdAt"`
}

// Snapshot is the complete mirrored state. It is always replaced as a unit.
//
// Collection order carries no meaning but is preserved through
// serialization so hashing stays deterministic.
type Snapshot struct {
	Profile         *Profile  `json:"profile"`
	Skills          []Skill   `json:"skills"`
	Projects        []Project `json:"projects"`
	Posts           []Post    `json:"posts"`
	Socials         []Social  `json:"socials"`
	ServerUpdatedAt string    `json:"serverUpdatedAt"`
}

// Envelope pairs a snapshot with its fingerprint hash.
type Envelope struct {
	Hash     string   `json:"hash"`
	Snapshot Snapshot `json:"snapshot"`
}

// EmptySnapshot returns a snapshot with no entities, stamped at the unix epoch.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Skills:          []Skill{},
		Projects:        []Project{},
		Posts:           []Post{},
		Socials:         []Social{},
		ServerUpdatedAt: FormatTime(time.UnixMilli(0)),
	}
}

// Clone returns a deep copy. Nil collections become empty ones so the
// copy always serializes with arrays rather than null.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Skills:          make([]Skill, len(s.Skills)),
		Projects:        make([]Project, len(s.Projects)),
		Posts:           make([]Post, len(s.Posts)),
		Socials:         make([]Social, len(s.Socials)),
		ServerUpdatedAt: s.ServerUpdatedAt,
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	copy(out.Skills, s.Skills)
	for i, p := range s.Projects {
		p.SkillIDs = append(make([]int64, 0, len(p.SkillIDs)), p.SkillIDs...)
		out.Projects[i] = p
	}
	copy(out.Posts, s.Posts)
	copy(out.Socials, s.Socials)
	return out
}

// FormatTime renders t the way the backend does: UTC, millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTime parses an entity timestamp into unix milliseconds.
// Empty or malformed values yield 0.
func ParseTime(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// StringPtr returns nil for the empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
