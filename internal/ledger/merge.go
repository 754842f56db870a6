package ledger

import (
	"github.com/mmynk/splitton/internal/models"
)

// Merge sides.
const (
	SideLocal  = "local"
	SideRemote = "remote"
)

// Conflict records an entity edited on both sides since the common base.
type Conflict struct {
	Kind   string `json:"kind"` // "expense" or "participant"
	ID     string `json:"id"`
	Winner string `json:"winner"`
}

// Merge reconciles two versions of an event that diverged from base.
//
// Event metadata comes from the more recently modified side. Participants
// and expenses are unioned by ID. An entity changed on only one side since
// base takes that side's version; one changed on both sides takes the newer
// version (by expense LastModified, or event LastModified for participants)
// and is reported as a Conflict. Ties go to local. base may be nil when no
// common ancestor is known.
func Merge(base, local, remote *models.Event) (*models.Event, []Conflict) {
	switch {
	case local == nil:
		return remote.Clone(), nil
	case remote == nil:
		return local.Clone(), nil
	}

	localNewer := local.LastModified >= remote.LastModified
	var out *models.Event
	if localNewer {
		out = local.Clone()
	} else {
		out = remote.Clone()
	}
	out.LastModified = max(local.LastModified, remote.LastModified)

	var conflicts []Conflict
	out.Participants, conflicts = mergeParticipants(base, local, remote, localNewer, conflicts)
	out.Expenses, conflicts = mergeExpenses(base, local, remote, conflicts)
	return out, conflicts
}

func mergeParticipants(base, local, remote *models.Event, localNewer bool, conflicts []Conflict) ([]models.Participant, []Conflict) {
	baseByID := make(map[string]models.Participant)
	if base != nil {
		for _, p := range base.Participants {
			baseByID[p.ID] = p
		}
	}
	remoteByID := make(map[string]models.Participant, len(remote.Participants))
	for _, p := range remote.Participants {
		remoteByID[p.ID] = p
	}

	out := make([]models.Participant, 0, len(local.Participants)+len(remote.Participants))
	seen := make(map[string]bool)
	for _, lp := range local.Participants {
		seen[lp.ID] = true
		rp, ok := remoteByID[lp.ID]
		if !ok || rp == lp {
			out = append(out, lp)
			continue
		}
		bp, inBase := baseByID[lp.ID]
		switch {
		case inBase && bp == lp:
			out = append(out, rp)
		case inBase && bp == rp:
			out = append(out, lp)
		default:
			winner, side := rp, SideRemote
			if localNewer {
				winner, side = lp, SideLocal
			}
			out = append(out, winner)
			conflicts = append(conflicts, Conflict{Kind: "participant", ID: lp.ID, Winner: side})
		}
	}
	for _, rp := range remote.Participants {
		if !seen[rp.ID] {
			out = append(out, rp)
		}
	}
	return out, conflicts
}

func mergeExpenses(base, local, remote *models.Event, conflicts []Conflict) ([]models.Expense, []Conflict) {
	baseByID := make(map[string]*models.Expense)
	if base != nil {
		for i := range base.Expenses {
			baseByID[base.Expenses[i].ID] = &base.Expenses[i]
		}
	}
	remoteByID := make(map[string]*models.Expense, len(remote.Expenses))
	for i := range remote.Expenses {
		remoteByID[remote.Expenses[i].ID] = &remote.Expenses[i]
	}

	out := make([]models.Expense, 0, len(local.Expenses)+len(remote.Expenses))
	seen := make(map[string]bool)
	for i := range local.Expenses {
		le := &local.Expenses[i]
		seen[le.ID] = true
		re, ok := remoteByID[le.ID]
		if !ok {
			out = append(out, le.Clone())
			continue
		}
		if le.SameContent(re) {
			if re.LastModified > le.LastModified {
				out = append(out, re.Clone())
			} else {
				out = append(out, le.Clone())
			}
			continue
		}

		be := baseByID[le.ID]
		localChanged := be == nil || !be.SameContent(le)
		remoteChanged := be == nil || !be.SameContent(re)
		switch {
		case localChanged && !remoteChanged:
			out = append(out, le.Clone())
		case remoteChanged && !localChanged:
			out = append(out, re.Clone())
		case re.LastModified > le.LastModified:
			out = append(out, re.Clone())
			conflicts = append(conflicts, Conflict{Kind: "expense", ID: le.ID, Winner: SideRemote})
		default:
			out = append(out, le.Clone())
			conflicts = append(conflicts, Conflict{Kind: "expense", ID: le.ID, Winner: SideLocal})
		}
	}
	for i := range remote.Expenses {
		if !seen[remote.Expenses[i].ID] {
			out = append(out, remote.Expenses[i].Clone())
		}
	}
	return out, conflicts
}
