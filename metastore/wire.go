package metastore

import (
	"time"

	"github.com/toccatech/coffre"
)

// GraphQL documents sent to the metadata store. Filter queries return
// lists; when several resources share a name the first match wins.
const (
	queryUserByToken = `query UserByToken($token: String!) {
  queryUser(filter: { authToken: { eq: $token } }, first: 1) {
    id
    email
    username
    avatarURL
    profile { id }
  }
}`

	queryResourceByName = `query ResourceByName($name: String!) {
  queryResource(filter: { name: { eq: $name } }) {
    id
    name
    acceptMimeTypes
  }
}`

	mutationAddFile = `mutation AddFile($input: [AddFileInput!]!) {
  addFile(input: $input) {
    file {
      id
      originalName
      name
      size
      mimeType
      visibility
      isPublic
      category
      owner { id }
      sharedWith { id }
      resource { id }
      createdAt
    }
  }
}`

	queryFileByID = `query FileByID($id: ID!) {
  getFile(id: $id) {
    id
    originalName
    name
    size
    mimeType
    visibility
    isPublic
    category
    owner { id }
    sharedWith { id }
    resource { id }
    createdAt
  }
}`

	queryFileByStoredName = `query FileByStoredName($name: String!) {
  queryFile(filter: { name: { eq: $name } }, first: 1) {
    id
    name
    owner { id }
  }
}`

	mutationUpdateFile = `mutation UpdateFile($id: [ID!], $set: FilePatch!) {
  updateFile(input: { filter: { id: $id }, set: $set }) {
    file {
      id
      originalName
      name
      size
      mimeType
      visibility
      isPublic
      category
      owner { id }
      sharedWith { id }
      resource { id }
      createdAt
    }
  }
}`

	mutationDeleteFile = `mutation DeleteFile($id: [ID!]) {
  deleteFile(filter: { id: $id }) {
    file { name }
  }
}`
)

type wireRef struct {
	ID string `json:"id"`
}

type wireUser struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatarURL"`
	Profile   wireRef `json:"profile"`
}

func (u wireUser) identity() coffre.Identity {
	return coffre.Identity{
		ID:        u.ID,
		ProfileID: u.Profile.ID,
		Email:     u.Email,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}

type wireFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	Visibility   string    `json:"visibility"`
	IsPublic     *bool     `json:"isPublic"`
	Category     string    `json:"category"`
	Owner        wireRef   `json:"owner"`
	SharedWith   []wireRef `json:"sharedWith"`
	Resource     wireRef   `json:"resource"`
	CreatedAt    time.Time `json:"createdAt"`
}

// record converts a wire file to the domain record. Older records in the
// store predate the visibility enum and carry only the isPublic boolean;
// those map to public/private.
func (f wireFile) record() coffre.FileRecord {
	visibility := coffre.Visibility(f.Visibility)
	if !visibility.IsValid() && f.IsPublic != nil {
		if *f.IsPublic {
			visibility = coffre.VisibilityPublic
		} else {
			visibility = coffre.VisibilityPrivate
		}
	}

	shared := make([]string, 0, len(f.SharedWith))
	for _, ref := range f.SharedWith {
		shared = append(shared, ref.ID)
	}

	return coffre.FileRecord{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		StoredName:   f.Name,
		Size:         f.Size,
		MIMEType:     f.MimeType,
		Visibility:   visibility,
		Category:     f.Category,
		Owner:        f.Owner.ID,
		SharedWith:   shared,
		ResourceID:   f.Resource.ID,
		CreatedAt:    f.CreatedAt,
	}
}
