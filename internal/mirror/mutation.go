package mirror

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/folio/internal/model"
)

// Mutation is one optimistic change parsed from an intent.
//
// The concrete types are NoOp, ProfileUpsert, SkillWrite, ProjectWrite,
// ProjectToggleFeatured, PostWrite, PostTogglePublished, SocialWrite and
// Delete.
type Mutation interface {
	apply(s *model.Snapshot)
}

// NoOp is the mutation of an intent that does not touch the mirror.
type NoOp struct {
	Reason string
}

// ProfileUpsert replaces the single profile record.
type ProfileUpsert struct {
	At        string
	FullName  string
	Headline  string
	Bio       string
	Location  string
	Email     string
	Phone     string
	AvatarURL string
	ResumeURL string
}

// SkillWrite creates or updates a skill. A nil TargetID allocates a
// temporary id. Empty strings mean the field was not submitted.
type SkillWrite struct {
	TargetID     *int64
	At           string
	Name         string
	Description  string
	Category     string
	Proficiency  *int64
	ThumbnailURL string
}

// ProjectWrite creates or updates a project.
type ProjectWrite struct {
	TargetID     *int64
	At           string
	Title        string
	Summary      string
	Details      string
	ProjectType  string
	RepoURL      string
	LiveURL      string
	ThumbnailURL string
	Featured     bool
	SkillIDs     []int64
}

// ProjectToggleFeatured flips the featured flag of a project.
type ProjectToggleFeatured struct {
	TargetID *int64
	At       string
}

// PostWrite creates or updates a post.
type PostWrite struct {
	TargetID        *int64
	At              string
	Title           string
	Excerpt         string
	MarkdownContent string
	ThumbnailURL    string
	Published       bool
}

// PostTogglePublished flips the published flag of a post.
type PostTogglePublished struct {
	TargetID *int64
	At       string
}

// SocialWrite creates or updates a social link.
type SocialWrite struct {
	TargetID *int64
	At       string
	Name     string
	URL      string
	ImageURL string
}

// Delete removes a record from a collection.
type Delete struct {
	Entity model.Entity
	ID     int64
}

// ParseMutation classifies an intent. It never fails; intents it cannot
// interpret become a NoOp carrying the reason.
func ParseMutation(in model.Intent) Mutation {
	entity, op := in.Entity(), in.Operation()
	if entity == "" || op == "" {
		return NoOp{Reason: "missing metadata"}
	}

	at := model.FormatTime(time.UnixMilli(in.CreatedAt))
	target := targetOf(in)

	if op == model.OpDelete {
		if entity == model.EntityProfile {
			return NoOp{Reason: "profile cannot be deleted"}
		}
		if !entity.Valid() {
			return NoOp{Reason: "unknown entity " + string(entity)}
		}
		if target == nil {
			return NoOp{Reason: "delete without target"}
		}
		return Delete{Entity: entity, ID: *target}
	}

	switch entity {
	case model.EntityProfile:
		if op != model.OpUpsert {
			break
		}
		return ProfileUpsert{
			At:        at,
			FullName:  in.Text("fullName"),
			Headline:  in.Text("headline"),
			Bio:       in.Text("bio"),
			Location:  in.Text("location"),
			Email:     in.Text("email"),
			Phone:     in.Text("phone"),
			AvatarURL: in.Text("avatarUrl"),
			ResumeURL: in.Text("resumeUrl"),
		}

	case model.EntitySkills:
		if !isWrite(op) {
			break
		}
		return SkillWrite{
			TargetID:     target,
			At:           at,
			Name:         in.Text("name"),
			Description:  in.Text("description"),
			Category:     in.Text("category"),
			Proficiency:  parseInt(in.Text("proficiency")),
			ThumbnailURL: in.Text("thumbnailUrl"),
		}

	case model.EntityProjects:
		if op == model.OpToggleFeatured {
			return ProjectToggleFeatured{TargetID: target, At: at}
		}
		if !isWrite(op) {
			break
		}
		return ProjectWrite{
			TargetID:     target,
			At:           at,
			Title:        in.Text("title"),
			Summary:      in.Text("summary"),
			Details:      in.Text("details"),
			ProjectType:  in.Text("projectType"),
			RepoURL:      in.Text("repoUrl"),
			LiveURL:      in.Text("liveUrl"),
			ThumbnailURL: in.Text("thumbnailUrl"),
			Featured:     in.Has("featured"),
			SkillIDs:     in.Ints("skillIds"),
		}

	case model.EntityPosts:
		if op == model.OpTogglePublished {
			return PostTogglePublished{TargetID: target, At: at}
		}
		if !isWrite(op) {
			break
		}
		return PostWrite{
			TargetID:        target,
			At:              at,
			Title:           in.Text("title"),
			Excerpt:         in.Text("excerpt"),
			MarkdownContent: in.Text("markdownContent"),
			ThumbnailURL:    in.Text("thumbnailUrl"),
			Published:       in.Has("published"),
		}

	case model.EntitySocials:
		if !isWrite(op) {
			break
		}
		return SocialWrite{
			TargetID: target,
			At:       at,
			Name:     in.Text("name"),
			URL:      in.Text("url"),
			ImageURL: in.Text("imageUrl"),
		}
	}

	return NoOp{Reason: "unsupported " + string(entity) + "/" + string(op)}
}

func isWrite(op model.Operation) bool {
	return op == model.OpCreate || op == model.OpUpdate
}

func targetOf(in model.Intent) *int64 {
	id, ok := in.TargetID()
	if !ok {
		return nil
	}
	return &id
}

func parseInt(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
