package store

import (
	"sort"

	"github.com/google/uuid"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

func (s *Store) SendRequest(senderID, receiverID string) (model.FriendRequest, error) {
	if receiverID == "" {
		return model.FriendRequest{}, apperrors.Invalid("User ID is required")
	}
	if receiverID == senderID {
		return model.FriendRequest{}, apperrors.Invalid("You cannot send a friend request to yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requestsByID {
		if r.Status != model.RequestPending {
			continue
		}
		if r.SenderID == senderID && r.ReceiverID == receiverID {
			return model.FriendRequest{}, apperrors.Invalid("Request already sent")
		}
		if r.SenderID == receiverID && r.ReceiverID == senderID {
			return model.FriendRequest{}, apperrors.Invalid("Request already received")
		}
	}
	if _, ok := s.directByPair[pairKey(senderID, receiverID)]; ok {
		return model.FriendRequest{}, apperrors.Invalid("You are already friends")
	}

	r := model.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.RequestPending,
		CreatedAt:  s.nowMillis(),
	}
	s.requestsByID[r.ID] = r
	return r, nil
}

// PendingRequests lists the requests waiting for userID's answer, newest first.
func (s *Store) PendingRequests(userID string) []model.FriendRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.FriendRequest, 0)
	for _, r := range s.requestsByID {
		if r.ReceiverID == userID && r.Status == model.RequestPending {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt == result[j].CreatedAt {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result
}

// RespondRequest accepts or rejects a pending request addressed to userID.
// Accepting opens the direct chat between both users.
func (s *Store) RespondRequest(requestID, userID string, accept bool) (model.FriendRequest, *model.Chat, error) {
	s.mu.Lock()
	r, ok := s.requestsByID[requestID]
	if !ok {
		s.mu.Unlock()
		return model.FriendRequest{}, nil, apperrors.NotFound("Request not found")
	}
	if r.ReceiverID != userID {
		s.mu.Unlock()
		return model.FriendRequest{}, nil, apperrors.Permission("You are not authorized to accept this request")
	}
	if r.Status != model.RequestPending {
		s.mu.Unlock()
		return model.FriendRequest{}, nil, apperrors.Invalid("Request already answered")
	}
	r.Status = model.RequestRejected
	if accept {
		r.Status = model.RequestAccepted
	}
	s.requestsByID[r.ID] = r
	s.mu.Unlock()

	if !accept {
		return r, nil, nil
	}
	chat, _, err := s.GetOrCreateDirect(r.SenderID, r.ReceiverID)
	if err != nil {
		return model.FriendRequest{}, nil, err
	}
	return r, &chat, nil
}
