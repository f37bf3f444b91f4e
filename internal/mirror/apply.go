package mirror

import (
	"fmt"

	"github.com/roach88/folio/internal/model"
)

// Default values for records created locally before the server has seen them.
const (
	DefaultProficiency int64 = 50
	DefaultProjectType       = "website"
)

// Apply returns the snapshot that results from optimistically applying the
// intent. The input snapshot is never modified.
func Apply(s model.Snapshot, in model.Intent) model.Snapshot {
	return ApplyMutation(s, ParseMutation(in))
}

// ApplyMutation is Apply for an already parsed mutation.
func ApplyMutation(s model.Snapshot, m Mutation) model.Snapshot {
	next := s.Clone()
	if m != nil {
		m.apply(&next)
	}
	return next
}

// ApplyAll folds every intent into the snapshot in order.
func ApplyAll(s model.Snapshot, intents []model.Intent) model.Snapshot {
	next := s.Clone()
	for _, in := range intents {
		ParseMutation(in).apply(&next)
	}
	return next
}

func (NoOp) apply(*model.Snapshot) {}

func (m ProfileUpsert) apply(s *model.Snapshot) {
	p := model.Profile{
		ID:        1,
		FullName:  m.FullName,
		Headline:  m.Headline,
		Bio:       m.Bio,
		Location:  model.StringPtr(m.Location),
		Email:     model.StringPtr(m.Email),
		Phone:     model.StringPtr(m.Phone),
		AvatarURL: model.StringPtr(m.AvatarURL),
		ResumeURL: model.StringPtr(m.ResumeURL),
		CreatedAt: m.At,
		UpdatedAt: m.At,
	}
	if s.Profile != nil {
		p.ID = s.Profile.ID
		p.CreatedAt = s.Profile.CreatedAt
	}
	s.Profile = &p
}

func (m SkillWrite) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Skills, skillID)
	existing, found := find(s.Skills, id, skillID)

	next := model.Skill{
		ID:           id,
		Name:         firstNonEmpty(m.Name, existing.Name),
		Slug:         slugFor(found, existing.Slug, "skill", id),
		Description:  model.StringPtr(m.Description),
		Category:     firstNonEmpty(m.Category, existing.Category),
		Proficiency:  DefaultProficiency,
		ThumbnailURL: firstNonNil(m.ThumbnailURL, existing.ThumbnailURL),
		CreatedAt:    createdAt(found, existing.CreatedAt, m.At),
		UpdatedAt:    m.At,
	}
	switch {
	case m.Proficiency != nil && *m.Proficiency != 0:
		next.Proficiency = *m.Proficiency
	case existing.Proficiency != 0:
		next.Proficiency = existing.Proficiency
	}

	s.Skills = upsert(s.Skills, next, skillID)
}

func (m ProjectWrite) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Projects, projectID)
	existing, found := find(s.Projects, id, projectID)

	next := projectBase(id, found, existing, m.At)
	next.Title = firstNonEmpty(m.Title, existing.Title)
	next.Summary = firstNonEmpty(m.Summary, existing.Summary)
	next.Details = firstNonEmpty(m.Details, existing.Details)
	next.ProjectType = firstNonEmpty(m.ProjectType, existing.ProjectType, DefaultProjectType)
	next.RepoURL = firstNonNil(m.RepoURL, existing.RepoURL)
	next.LiveURL = firstNonNil(m.LiveURL, existing.LiveURL)
	next.ThumbnailURL = firstNonNil(m.ThumbnailURL, existing.ThumbnailURL)
	next.Featured = m.Featured
	next.SkillIDs = append([]int64{}, m.SkillIDs...)

	s.Projects = upsert(s.Projects, next, projectID)
}

func (m ProjectToggleFeatured) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Projects, projectID)
	existing, found := find(s.Projects, id, projectID)

	next := projectBase(id, found, existing, m.At)
	next.Title = existing.Title
	next.Summary = existing.Summary
	next.Details = existing.Details
	next.ProjectType = firstNonEmpty(existing.ProjectType, DefaultProjectType)
	next.RepoURL = existing.RepoURL
	next.LiveURL = existing.LiveURL
	next.ThumbnailURL = existing.ThumbnailURL
	next.Featured = !existing.Featured
	next.SkillIDs = append([]int64{}, existing.SkillIDs...)

	s.Projects = upsert(s.Projects, next, projectID)
}

func projectBase(id int64, found bool, existing model.Project, at string) model.Project {
	return model.Project{
		ID:        id,
		Slug:      slugFor(found, existing.Slug, "project", id),
		CreatedAt: createdAt(found, existing.CreatedAt, at),
		UpdatedAt: at,
	}
}

func (m PostWrite) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Posts, postID)
	existing, found := find(s.Posts, id, postID)

	next := postBase(id, found, existing, m.At, m.Published)
	next.Title = firstNonEmpty(m.Title, existing.Title)
	next.Excerpt = firstNonEmpty(m.Excerpt, existing.Excerpt)
	next.MarkdownContent = firstNonEmpty(m.MarkdownContent, existing.MarkdownContent)
	next.ThumbnailURL = firstNonNil(m.ThumbnailURL, existing.ThumbnailURL)

	s.Posts = upsert(s.Posts, next, postID)
}

func (m PostTogglePublished) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Posts, postID)
	existing, found := find(s.Posts, id, postID)

	next := postBase(id, found, existing, m.At, !existing.Published)
	next.Title = existing.Title
	next.Excerpt = existing.Excerpt
	next.MarkdownContent = existing.MarkdownContent
	next.ThumbnailURL = existing.ThumbnailURL

	s.Posts = upsert(s.Posts, next, postID)
}

func postBase(id int64, found bool, existing model.Post, at string, published bool) model.Post {
	p := model.Post{
		ID:        id,
		Slug:      slugFor(found, existing.Slug, "post", id),
		Published: published,
		CreatedAt: createdAt(found, existing.CreatedAt, at),
		UpdatedAt: at,
	}
	if published {
		p.PublishedAt = model.StringPtr(at)
	}
	return p
}

func (m SocialWrite) apply(s *model.Snapshot) {
	id := resolveID(m.TargetID, s.Socials, socialID)
	existing, found := find(s.Socials, id, socialID)

	next := model.Social{
		ID:        id,
		Name:      firstNonEmpty(m.Name, existing.Name),
		URL:       firstNonEmpty(m.URL, existing.URL),
		ImageURL:  firstNonNil(m.ImageURL, existing.ImageURL),
		CreatedAt: createdAt(found, existing.CreatedAt, m.At),
		UpdatedAt: m.At,
	}

	s.Socials = upsert(s.Socials, next, socialID)
}

func (m Delete) apply(s *model.Snapshot) {
	switch m.Entity {
	case model.EntitySkills:
		s.Skills = remove(s.Skills, m.ID, skillID)
	case model.EntityProjects:
		s.Projects = remove(s.Projects, m.ID, projectID)
	case model.EntityPosts:
		s.Posts = remove(s.Posts, m.ID, postID)
	case model.EntitySocials:
		s.Socials = remove(s.Socials, m.ID, socialID)
	}
}

func skillID(v model.Skill) int64     { return v.ID }
func projectID(v model.Project) int64 { return v.ID }
func postID(v model.Post) int64       { return v.ID }
func socialID(v model.Social) int64   { return v.ID }

// NextTempID returns the temporary id for a new local record: one less than
// the smallest id when that is not positive, otherwise -1.
func NextTempID(ids []int64) int64 {
	var lowest int64
	for _, id := range ids {
		if id < lowest {
			lowest = id
		}
	}
	return lowest - 1
}

func resolveID[T any](target *int64, items []T, idOf func(T) int64) int64 {
	if target != nil {
		return *target
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = idOf(item)
	}
	return NextTempID(ids)
}

func find[T any](items []T, id int64, idOf func(T) int64) (T, bool) {
	for _, item := range items {
		if idOf(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// upsert replaces the record with the same id in place, or prepends it.
func upsert[T any](items []T, next T, idOf func(T) int64) []T {
	id := idOf(next)
	for i, item := range items {
		if idOf(item) == id {
			items[i] = next
			return items
		}
	}
	return append([]T{next}, items...)
}

func remove[T any](items []T, id int64, idOf func(T) int64) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

func slugFor(found bool, existing, kind string, id int64) string {
	if found {
		return existing
	}
	if id < 0 {
		id = -id
	}
	return fmt.Sprintf("local-%s-%d", kind, id)
}

func createdAt(found bool, existing, at string) string {
	if found {
		return existing
	}
	return at
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(submitted string, existing *string) *string {
	if submitted != "" {
		return &submitted
	}
	if existing != nil && *existing != "" {
		v := *existing
		return &v
	}
	return nil
}
