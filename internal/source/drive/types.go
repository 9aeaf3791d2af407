package drive

import "time"

// driveItem is one entry in a delta listing response.
type driveItem struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	ETag                 string        `json:"eTag"`
	Size                 int64         `json:"size"`
	CreatedDateTime      time.Time     `json:"createdDateTime"`
	LastModifiedDateTime time.Time     `json:"lastModifiedDateTime"`
	File                 *fileFacet    `json:"file,omitempty"`
	Folder               *folderFacet  `json:"folder,omitempty"`
	Deleted              *deletedFacet `json:"deleted,omitempty"`
}

// fileFacet marks an item as a content file.
type fileFacet struct {
	MimeType string `json:"mimeType"`
}

// folderFacet marks an item as a folder.
type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// deletedFacet marks an item as a deletion tombstone.
type deletedFacet struct {
	State string `json:"state"`
}

// deltaResponse is one page of a delta listing.
type deltaResponse struct {
	Value     []driveItem `json:"value"`
	NextLink  string      `json:"@odata.nextLink"`
	DeltaLink string      `json:"@odata.deltaLink"`
}

// errorResponse is the API's error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
