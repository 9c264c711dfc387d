package storage

import "fmt"

const (
	// Format: contest:{name}
	contestPrefix = "contest:"
	// Format: bookmark:{userID}:{contestName}
	bookmarkPrefix = "bookmark:"
)

func contestKey(name string) []byte {
	return []byte(contestPrefix + name)
}

func bookmarkKey(userID int64, contestName string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s", bookmarkPrefix, userID, contestName))
}

// bookmarkUserPrefix scans all bookmarks of one user.
func bookmarkUserPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("%s%d:", bookmarkPrefix, userID))
}
