package sd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"sd-address-tools/internal/model"
)

type memberRef struct {
	ID model.ObjectID `json:"id"`
}

type groupResource struct {
	Address struct {
		ID          model.ObjectID    `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description,omitempty"`
		AddressType model.AddressType `json:"address-type"`
		EditVersion model.EditVersion `json:"edit-version"`
		Members     struct {
			Member []memberRef `json:"member"`
		} `json:"members"`
	} `json:"address"`
}

// FindGroup returns the id of the address object named name. Names with a
// single quote cannot be expressed in a filter and are rejected.
func (s *Session) FindGroup(ctx context.Context, name string) (model.ObjectID, error) {
	if strings.ContainsRune(name, '\'') {
		return model.ObjectID{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	refs, err := s.search(ctx, "find group", filterQuery("name", name))
	if err != nil {
		return model.ObjectID{}, err
	}
	if refs.Addresses.Total < 1 || len(refs.Addresses.Address) == 0 {
		return model.ObjectID{}, fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	return refs.Addresses.Address[0].ID, nil
}

// GetGroup reads the group's members and its current edit-version.
func (s *Session) GetGroup(ctx context.Context, id model.ObjectID) (*model.GroupSnapshot, error) {
	var res groupResource
	err := s.do(ctx, call{
		op:      "get group",
		method:  http.MethodGet,
		path:    addressesPath + "/" + url.PathEscape(id.String()),
		accept:  addressMediaType,
		failure: ErrRemoteRead,
	}, &res)
	if err != nil {
		return nil, err
	}

	members := make([]model.ObjectID, 0, len(res.Address.Members.Member))
	for _, m := range res.Address.Members.Member {
		members = append(members, m.ID)
	}

	groupID := res.Address.ID
	if groupID.IsZero() {
		groupID = id
	}
	return &model.GroupSnapshot{
		ID:          groupID,
		Name:        res.Address.Name,
		Description: res.Address.Description,
		EditVersion: res.Address.EditVersion,
		Members:     members,
	}, nil
}

// UpdateGroup replaces the group's member list. The snapshot's edit-version
// is sent back; a stale one makes the server reject the write with
// ErrConflict. There is no retry.
func (s *Session) UpdateGroup(ctx context.Context, group *model.GroupSnapshot, members []model.ObjectID) error {
	var payload groupResource
	payload.Address.ID = group.ID
	payload.Address.Name = group.Name
	payload.Address.Description = group.Description
	payload.Address.AddressType = model.Group
	payload.Address.EditVersion = group.EditVersion
	payload.Address.Members.Member = make([]memberRef, 0, len(members))
	for _, id := range members {
		payload.Address.Members.Member = append(payload.Address.Members.Member, memberRef{ID: id})
	}

	err := s.do(ctx, call{
		op:        "update group",
		method:    http.MethodPut,
		path:      addressesPath + "/" + url.PathEscape(group.ID.String()),
		accept:    addressMediaType,
		content:   addressContentType,
		body:      payload,
		failure:   ErrRemoteWrite,
		conflicts: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to update group %s: %w", group.Name, err)
	}
	return nil
}
