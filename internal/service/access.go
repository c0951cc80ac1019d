package service

import (
	"fmt"

	"github.com/noteduco342/OMInbox-backend/internal/models"
)

// CanAccess gates every read and write on an existing thread. The creator keeps
// access even after leaving the group; everyone else needs approved membership.
func (s *InboxService) CanAccess(userID, threadID uint) (*models.Thread, error) {
	thread, err := s.threadRepo.FindByID(threadID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("load thread %d: %w", threadID, err)
	}

	if thread.CreatedByUserID == userID {
		return thread, nil
	}

	status, err := s.groupRepo.GetMemberStatus(thread.GroupID, userID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if status != models.MembershipApproved {
		return nil, ErrForbidden
	}
	return thread, nil
}

// CanCreateThread is stricter than CanAccess: platform admins, the group owner
// and approved members only. Having created earlier threads grants nothing here.
func (s *InboxService) CanCreateThread(userID, groupID uint) error {
	group, err := s.groupRepo.FindByID(groupID)
	if err != nil {
		if isNotFound(err) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("load group %d: %w", groupID, err)
	}
	if group.OwnerID == userID {
		return nil
	}

	status, err := s.groupRepo.GetMemberStatus(groupID, userID)
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	if status == models.MembershipApproved {
		return nil
	}

	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if isNotFound(err) {
			return ErrForbidden
		}
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.IsPlatformAdmin() {
		return nil
	}
	return ErrForbidden
}
