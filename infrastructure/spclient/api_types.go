package spclient

import (
	"encoding/json"

	"spscan/domain/sharepoint"
)

// Wire models for the sharing information API, trimmed to the fields
// the shared-access report needs.

type sharingApiResponse struct {
	ItemUniqueID           string                 `json:"itemUniqueId"`
	HasUniquePermissions   bool                   `json:"hasUniquePermissions"`
	PermissionsInformation permissionsInformation `json:"permissionsInformation"`
}

type permissionsInformation struct {
	Links odataResults[linkApiData] `json:"links"`
}

type odataResults[T any] struct {
	Results []T `json:"results"`
}

// One entry per sharing link present on the item.
type linkApiData struct {
	IsInherited           bool                           `json:"isInherited"`
	LinkDetails           linkDetailsApiData             `json:"linkDetails"`
	LinkMembers           odataResults[principalApiData] `json:"linkMembers"`
	TotalLinkMembersCount int                            `json:"totalLinkMembersCount"`
}

type linkDetailsApiData struct {
	ShareId  string  `json:"ShareId"`
	URL      *string `json:"Url"`
	IsActive bool    `json:"IsActive"`
	Created  string  `json:"Created"`

	CreatedBy *principalApiData `json:"CreatedBy"`
}

type principalApiData struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	LoginName     string  `json:"loginName"`
	Email         *string `json:"email"`
	PrincipalType int     `json:"principalType"`
}

// decodeSharingResponse handles both the verbose {"d": {...}} envelope
// and the plain response shape.
func decodeSharingResponse(data []byte) (sharingApiResponse, error) {
	var probe struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && len(probe.D) > 0 {
		var s sharingApiResponse
		if err := json.Unmarshal(probe.D, &s); err != nil {
			return sharingApiResponse{}, err
		}
		return s, nil
	}
	var s sharingApiResponse
	if err := json.Unmarshal(data, &s); err != nil {
		return sharingApiResponse{}, err
	}
	return s, nil
}

// mapSharingResponse converts the wire response into ItemSharing.
// Inactive links are dropped; inherited links are kept since they
// still grant access through the item's ancestors.
func mapSharingResponse(itemGUID string, resp sharingApiResponse) *ItemSharing {
	sharing := &ItemSharing{ItemGUID: itemGUID}

	for _, link := range resp.PermissionsInformation.Links.Results {
		ld := link.LinkDetails
		if !ld.IsActive {
			continue
		}

		info := SharingLinkInfo{
			ShareID:   ld.ShareId,
			URL:       strPtrValue(ld.URL),
			CreatedAt: ld.Created,
		}

		if ld.CreatedBy != nil {
			info.CreatedBy = mapPrincipal(*ld.CreatedBy)
		}
		for _, m := range link.LinkMembers.Results {
			info.Members = append(info.Members, *mapPrincipal(m))
		}

		sharing.Links = append(sharing.Links, info)
	}

	return sharing
}

func mapPrincipal(p principalApiData) *sharepoint.Principal {
	return &sharepoint.Principal{
		ID:        int64(p.ID),
		LoginName: p.LoginName,
		Title:     p.Name,
		Email:     strPtrValue(p.Email),
	}
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
