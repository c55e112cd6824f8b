package models

// Post is a feed entry created by a user. Its identity is the store key built
// from Username and Time; there is no separate id field. Time is the
// server-assigned RFC 3339 creation timestamp kept as the exact string used
// in the key, so the key stays reconstructible byte for byte.
type Post struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Content  string `json:"content"`
	Time     string `json:"time,omitempty"`
	Likes    int    `json:"likes,omitempty"`
}
