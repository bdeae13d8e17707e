package board

import "github.com/ramiqadoumi/go-task-board/internal/domain"

// CheckVersion accepts a mutation when the client has seen at least the stored version.
// A client version ahead of the store is accepted as well; it is not verified.
func CheckVersion(stored *domain.Task, clientVersion int) error {
	if clientVersion < stored.Version {
		return &domain.ConflictError{
			TaskID:        stored.ID,
			ClientVersion: clientVersion,
			Server:        stored,
		}
	}
	return nil
}
