package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"golang.org/x/sync/errgroup"
)

type DirectoryStore interface {
	store.UserStore
	store.VillageStore
	store.AlertStore
	store.MessageStore
	store.SOSStore
}

// Member is the public view of a village member.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
	CreatedAt   string `json:"createdAt"`
}

type VillageDetails struct {
	*models.Village
	Users []Member `json:"users"`
}

type DirectoryService struct {
	store DirectoryStore
}

func NewDirectoryService(st DirectoryStore) *DirectoryService {
	return &DirectoryService{store: st}
}

func toMember(user models.User) Member {
	return Member{
		ID:          user.ID,
		Name:        user.Name,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// VillageUsers lists the verified members of the viewer's village, optionally
// narrowed to 'role', ordered by name & excluding the viewer.
func (s *DirectoryService) VillageUsers(ctx context.Context, viewer *models.User, role string) ([]Member, error) {
	if role != "" {
		if err := validateField("role", role, "oneof=SARPANCH VILLAGER"); err != nil {
			return nil, err
		}
	}

	users, err := s.store.ListUsers(ctx, models.UserFilter{
		VillageID:    viewer.VillageID,
		Role:         role,
		VerifiedOnly: true,
		ExcludeID:    viewer.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list village users")
	}

	members := make([]Member, 0, len(users))
	for _, user := range users {
		members = append(members, toMember(user))
	}
	return members, nil
}

// VillageUser returns a verified member of the viewer's own village.
func (s *DirectoryService) VillageUser(ctx context.Context, viewer *models.User, id string) (*Member, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "User")
	}

	if user.VillageID != viewer.VillageID || !user.IsVerified {
		return nil, notFound("User")
	}

	member := toMember(*user)
	return &member, nil
}

// SearchVillages looks villages up by pin code. Pin codes are unique so at most
// one village is returned.
func (s *DirectoryService) SearchVillages(ctx context.Context, pinCode string) ([]models.Village, error) {
	if err := validateField("pinCode", pinCode, "required,len=6,pin_code"); err != nil {
		return nil, err
	}

	village, err := s.store.GetVillageByPinCode(ctx, pinCode)
	if errors.Is(err, store.ErrNotFound) {
		return []models.Village{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to search villages")
	}

	return []models.Village{*village}, nil
}

// CurrentVillage returns the viewer's village together with all its verified members.
func (s *DirectoryService) CurrentVillage(ctx context.Context, viewer *models.User) (*VillageDetails, error) {
	village, err := s.store.GetVillage(ctx, viewer.VillageID)
	if err != nil {
		return nil, notFoundOr(err, "Village")
	}

	users, err := s.store.ListUsers(ctx, models.UserFilter{VillageID: village.ID, VerifiedOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list village users")
	}

	details := &VillageDetails{Village: village, Users: make([]Member, 0, len(users))}
	for _, user := range users {
		details.Users = append(details.Users, toMember(user))
	}
	return details, nil
}

// Stats counts the viewer's village activity. Each count is independent; a
// failing one is logged & reported as zero.
func (s *DirectoryService) Stats(ctx context.Context, viewer *models.User) models.VillageStats {
	var stats models.VillageStats
	villageID := viewer.VillageID

	var group errgroup.Group
	count := func(name string, target *int64, fn func() (int64, error)) {
		group.Go(func() error {
			n, err := fn()
			if err != nil {
				logg.Errorf("%s unable to count %s: %v", colors.Red("[directory]"), name, err)
				return nil
			}
			*target = n
			return nil
		})
	}

	count("users", &stats.TotalUsers, func() (int64, error) {
		return s.store.CountUsers(ctx, models.UserFilter{VillageID: villageID, VerifiedOnly: true})
	})
	count("villagers", &stats.TotalVillagers, func() (int64, error) {
		return s.store.CountUsers(ctx, models.UserFilter{VillageID: villageID, Role: models.VILLAGER_ROLE, VerifiedOnly: true})
	})
	count("alerts", &stats.TotalAlerts, func() (int64, error) {
		return s.store.CountAlerts(ctx, villageID)
	})
	count("pending SOS reports", &stats.PendingSOSReports, func() (int64, error) {
		return s.store.CountSOSReports(ctx, models.SOSFilter{VillageID: villageID, Status: models.PENDING_SOS})
	})
	count("messages", &stats.RecentMessages, func() (int64, error) {
		return s.store.CountMessages(ctx, villageID)
	})

	group.Wait()
	return stats
}
