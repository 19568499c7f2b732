package store

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *Store) ChatsFor(userID string) []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Chat, 0)
	for _, c := range s.chatsByID {
		if c.HasMember(userID) {
			result = append(result, cloneChat(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt == result[j].UpdatedAt {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	return result
}

// ChatForMember returns chatID if userID belongs to it.
func (s *Store) ChatForMember(chatID, userID string) (model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chatsByID[chatID]
	if !ok {
		return model.Chat{}, apperrors.NotFound("Chat not found")
	}
	if !c.HasMember(userID) {
		return model.Chat{}, apperrors.Permission("You are not a member of this chat")
	}
	return cloneChat(c), nil
}

func (s *Store) CreateGroup(creator, name string, otherMembers []string) (model.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Chat{}, apperrors.Invalid("Group name is required")
	}
	others := lo.Without(lo.Uniq(lo.Compact(otherMembers)), creator)
	if len(others) == 0 {
		return model.Chat{}, apperrors.Invalid("At least one other member is required")
	}
	members := append([]string{creator}, others...)
	if len(members) > s.maxGroupMembers {
		return model.Chat{}, apperrors.Invalid("Group members limit reached")
	}

	now := s.nowMillis()
	c := model.Chat{
		ID:        uuid.NewString(),
		Name:      name,
		GroupChat: true,
		Creator:   creator,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.chatsByID[c.ID] = c
	s.mu.Unlock()
	return cloneChat(c), nil
}

// GetOrCreateDirect returns the one-to-one chat between a and b.
func (s *Store) GetOrCreateDirect(a, b string) (model.Chat, bool, error) {
	if a == "" || b == "" || a == b {
		return model.Chat{}, false, apperrors.Invalid("A direct chat needs two distinct users")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(a, b)
	if id, ok := s.directByPair[key]; ok {
		if c, ok := s.chatsByID[id]; ok {
			return cloneChat(c), false, nil
		}
	}

	now := s.nowMillis()
	c := model.Chat{
		ID:        uuid.NewString(),
		Members:   []string{a, b},
		Creator:   a,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chatsByID[c.ID] = c
	s.directByPair[key] = c.ID
	return cloneChat(c), true, nil
}

func (s *Store) RenameGroup(chatID, userID, name string) (model.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Chat{}, apperrors.Invalid("Group name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.creatorGroupLocked(chatID, userID)
	if err != nil {
		return model.Chat{}, err
	}
	c.Name = name
	c.UpdatedAt = s.nowMillis()
	s.chatsByID[c.ID] = c
	return cloneChat(c), nil
}

// DeleteChat removes the chat and its history. Groups can only be deleted by
// their creator, direct chats by either member.
func (s *Store) DeleteChat(ctx context.Context, chatID, userID string) (model.Chat, error) {
	s.mu.Lock()
	c, ok := s.chatsByID[chatID]
	if !ok {
		s.mu.Unlock()
		return model.Chat{}, apperrors.NotFound("Chat not found")
	}
	if c.GroupChat && c.Creator != userID {
		s.mu.Unlock()
		return model.Chat{}, apperrors.Permission("You are not the creator of this group")
	}
	if !c.HasMember(userID) {
		s.mu.Unlock()
		return model.Chat{}, apperrors.Permission("You are not a member of this chat")
	}
	delete(s.chatsByID, chatID)
	if !c.GroupChat && len(c.Members) == 2 {
		delete(s.directByPair, pairKey(c.Members[0], c.Members[1]))
	}
	s.mu.Unlock()

	if err := s.messages.deleteChat(ctx, chatID); err != nil {
		return model.Chat{}, err
	}
	return cloneChat(c), nil
}

// AddMembers adds every user not already in the group and returns the
// updated chat together with the users that were actually added.
func (s *Store) AddMembers(chatID, userID string, members []string) (model.Chat, []string, error) {
	members = lo.Uniq(lo.Compact(members))
	if len(members) == 0 {
		return model.Chat{}, nil, apperrors.Invalid("Please provide members")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.creatorGroupLocked(chatID, userID)
	if err != nil {
		return model.Chat{}, nil, err
	}
	added := lo.Filter(members, func(m string, _ int) bool { return !c.HasMember(m) })
	if len(added) == 0 {
		return model.Chat{}, nil, apperrors.Invalid("Members are already in the group")
	}
	if len(c.Members)+len(added) > s.maxGroupMembers {
		return model.Chat{}, nil, apperrors.Invalid("Group members limit reached")
	}

	c.Members = append(append([]string(nil), c.Members...), added...)
	c.UpdatedAt = s.nowMillis()
	s.chatsByID[c.ID] = c
	return cloneChat(c), added, nil
}

func (s *Store) RemoveMember(chatID, userID, memberID string) (model.Chat, error) {
	if memberID == "" {
		return model.Chat{}, apperrors.Invalid("Member ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.creatorGroupLocked(chatID, userID)
	if err != nil {
		return model.Chat{}, err
	}
	if !c.HasMember(memberID) {
		return model.Chat{}, apperrors.Invalid("User is not a member of this group")
	}
	if len(c.Members) < 2 {
		return model.Chat{}, apperrors.Invalid("You cannot remove the last member of the group")
	}

	c.Members = lo.Without(c.Members, memberID)
	if c.Creator == memberID {
		c.Creator = c.Members[0]
	}
	c.UpdatedAt = s.nowMillis()
	s.chatsByID[c.ID] = c
	return cloneChat(c), nil
}

// LeaveGroup drops userID from the group. A leaving creator hands the group
// to the longest-standing remaining member; the last member leaving deletes
// the group.
func (s *Store) LeaveGroup(chatID, userID string) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chatsByID[chatID]
	if !ok {
		return model.Chat{}, apperrors.NotFound("Chat not found")
	}
	if !c.GroupChat {
		return model.Chat{}, apperrors.Invalid("Not a group chat")
	}
	if !c.HasMember(userID) {
		return model.Chat{}, apperrors.Permission("You are not a member of this group")
	}

	c.Members = c.OtherMembers(userID)
	if len(c.Members) == 0 {
		delete(s.chatsByID, chatID)
		return cloneChat(c), nil
	}
	if c.Creator == userID {
		c.Creator = c.Members[0]
	}
	c.UpdatedAt = s.nowMillis()
	s.chatsByID[c.ID] = c
	return cloneChat(c), nil
}

func (s *Store) creatorGroupLocked(chatID, userID string) (model.Chat, error) {
	c, ok := s.chatsByID[chatID]
	if !ok {
		return model.Chat{}, apperrors.NotFound("Chat not found")
	}
	if !c.GroupChat {
		return model.Chat{}, apperrors.Invalid("This is not a group chat")
	}
	if c.Creator != userID {
		return model.Chat{}, apperrors.Permission("You are not the creator of this group")
	}
	return c, nil
}
