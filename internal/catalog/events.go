package catalog

// Event is emitted after a catalog mutation commits.
type Event interface {
	catalogEvent()
}

// FileUploaded announces a new file to every connected user.
type FileUploaded struct {
	File     FileRecord
	Uploader string
}

// FileShared is addressed to Grant.ReceiverID only.
type FileShared struct {
	Grant ShareGrant
}

func (FileUploaded) catalogEvent() {}
func (FileShared) catalogEvent()   {}

// Emitter receives catalog events. Emit must only hand the event off; it
// must never block on delivery to clients or fail the mutation.
type Emitter interface {
	Emit(Event)
}

type discard struct{}

func (discard) Emit(Event) {}
