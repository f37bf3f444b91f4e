package mirror

import (
	"github.com/roach88/folio/internal/model"
)

// Merge combines a fresh server snapshot with the local mirror.
//
// For each collection, matched by id:
//   - records only on the server are taken from the server
//   - records on both sides with a pending intent targeting them keep the
//     local version
//   - records on both sides otherwise keep the newer updatedAt; local wins ties
//   - records only in the mirror are kept when a pending intent targets them,
//     or when they carry a temporary (negative) id and a create for that
//     entity is still pending
//
// The profile follows the server unless a pending intent targets the profile
// or the server has none. serverUpdatedAt always comes from the server.
// A nil local mirror yields a copy of remote.
func Merge(remote model.Snapshot, local *model.Snapshot, pending []model.Intent) model.Snapshot {
	if local == nil {
		return remote.Clone()
	}
	r := remote.Clone()
	l := local.Clone()

	merged := model.Snapshot{
		Profile:         r.Profile,
		Skills:          mergeByID(r.Skills, l.Skills, model.EntitySkills, pending, skillID, skillUpdatedAt),
		Projects:        mergeByID(r.Projects, l.Projects, model.EntityProjects, pending, projectID, projectUpdatedAt),
		Posts:           mergeByID(r.Posts, l.Posts, model.EntityPosts, pending, postID, postUpdatedAt),
		Socials:         mergeByID(r.Socials, l.Socials, model.EntitySocials, pending, socialID, socialUpdatedAt),
		ServerUpdatedAt: r.ServerUpdatedAt,
	}

	if l.Profile != nil && (r.Profile == nil || hasPendingEntity(model.EntityProfile, pending)) {
		merged.Profile = l.Profile
	}
	return merged
}

func skillUpdatedAt(v model.Skill) string     { return v.UpdatedAt }
func projectUpdatedAt(v model.Project) string { return v.UpdatedAt }
func postUpdatedAt(v model.Post) string       { return v.UpdatedAt }
func socialUpdatedAt(v model.Social) string   { return v.UpdatedAt }

func mergeByID[T any](
	remote, local []T,
	entity model.Entity,
	pending []model.Intent,
	idOf func(T) int64,
	updatedAt func(T) string,
) []T {
	localByID := make(map[int64]T, len(local))
	for _, item := range local {
		localByID[idOf(item)] = item
	}
	remoteIDs := make(map[int64]struct{}, len(remote))

	out := make([]T, 0, len(remote)+len(local))
	for _, r := range remote {
		id := idOf(r)
		remoteIDs[id] = struct{}{}

		l, ok := localByID[id]
		switch {
		case !ok:
			out = append(out, r)
		case hasPendingFor(entity, id, pending):
			out = append(out, l)
		case model.ParseTime(updatedAt(l)) >= model.ParseTime(updatedAt(r)):
			out = append(out, l)
		default:
			out = append(out, r)
		}
	}

	createPending := hasPendingCreate(entity, pending)
	for _, l := range local {
		id := idOf(l)
		if _, onServer := remoteIDs[id]; onServer {
			continue
		}
		if hasPendingFor(entity, id, pending) || (id < 0 && createPending) {
			out = append(out, l)
		}
	}
	return out
}

// hasPendingFor reports whether a pending intent addresses the record.
func hasPendingFor(entity model.Entity, id int64, pending []model.Intent) bool {
	for _, in := range pending {
		if in.Entity() != entity {
			continue
		}
		if target, ok := in.TargetID(); ok && target == id {
			return true
		}
	}
	return false
}

func hasPendingEntity(entity model.Entity, pending []model.Intent) bool {
	for _, in := range pending {
		if in.Entity() == entity {
			return true
		}
	}
	return false
}

// hasPendingCreate reports whether a create for the entity is still queued,
// meaning a temporary record may not have reached the server yet.
func hasPendingCreate(entity model.Entity, pending []model.Intent) bool {
	for _, in := range pending {
		if in.Entity() != entity || in.Operation() != model.OpCreate {
			continue
		}
		if _, ok := in.TargetID(); !ok {
			return true
		}
	}
	return false
}

// DetectConflicts counts pending intents whose server-side target was
// updated strictly after the intent was captured. Conflicts are reported,
// not resolved.
func DetectConflicts(remote model.Snapshot, pending []model.Intent) int {
	conflicts := 0
	for _, in := range pending {
		if remoteUpdatedAt(remote, in) > in.CreatedAt {
			conflicts++
		}
	}
	return conflicts
}

// remoteUpdatedAt returns the server updatedAt, in unix milliseconds, of the
// record an intent targets, or 0 when there is none. Intents without a
// target id have no server record to compare against, profile included.
func remoteUpdatedAt(remote model.Snapshot, in model.Intent) int64 {
	entity := in.Entity()
	id, ok := in.TargetID()
	if !ok {
		return 0
	}
	if entity == model.EntityProfile {
		if remote.Profile == nil {
			return 0
		}
		return model.ParseTime(remote.Profile.UpdatedAt)
	}

	var at string
	switch entity {
	case model.EntitySkills:
		v, _ := find(remote.Skills, id, skillID)
		at = v.UpdatedAt
	case model.EntityProjects:
		v, _ := find(remote.Projects, id, projectID)
		at = v.UpdatedAt
	case model.EntityPosts:
		v, _ := find(remote.Posts, id, postID)
		at = v.UpdatedAt
	case model.EntitySocials:
		v, _ := find(remote.Socials, id, socialID)
		at = v.UpdatedAt
	}
	return model.ParseTime(at)
}

// ServerNegativeIDs counts server records with a negative id. Negative ids
// are reserved for records created locally, so a non-zero count means the
// server and the mirror disagree about the id space and temporary records
// may be confused with server records.
func ServerNegativeIDs(remote model.Snapshot) int {
	n := countNegative(remote.Skills, skillID) +
		countNegative(remote.Projects, projectID) +
		countNegative(remote.Posts, postID) +
		countNegative(remote.Socials, socialID)
	if remote.Profile != nil && remote.Profile.ID < 0 {
		n++
	}
	return n
}

func countNegative[T any](items []T, idOf func(T) int64) int {
	n := 0
	for _, item := range items {
		if idOf(item) < 0 {
			n++
		}
	}
	return n
}
