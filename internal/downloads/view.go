package downloads

// Item is the serialized view model of one download job
type Item struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	APIURL      string `json:"apiUrl"`
	Resource    string `json:"resource"`
	Filename    string `json:"filename"`
	Timestamp   string `json:"timestamp"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Complete reports whether the item should render with its download link
func (i Item) Complete() bool {
	return i.DownloadURL != ""
}

// Mount is the surface a download list attaches to
type Mount interface {
	Attach() ListView
}

// ListView renders the download list. Put appends a new item or replaces the
// item with the same key.
type ListView interface {
	Put(item Item)
	Remove(key string)
	Destroy()
}
