// Package messaging defines the external messaging collaborator boundary:
// sending a delivered Item onward is out of scope beyond this interface
// and one best-effort HTTP implementation.
package messaging

import "context"

// Sender is the downstream collaborator boundary. Both capabilities are
// best-effort; a returned error means the send did not happen, but callers
// are not expected to retry beyond what the implementation already does.
type Sender interface {
	// SendPhoto sends photoURL to chatID with an HTML-formatted caption.
	SendPhoto(ctx context.Context, chatID int64, photoURL, captionHTML string) error
	// SendText sends a plain text message to chatID.
	SendText(ctx context.Context, chatID int64, text string) error
}
