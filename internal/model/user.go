package model

// User is a registered client of the curation engine — the account a
// subscription command is attributed to. IsUser distinguishes a human from
// a bot account on the messaging transport.
type User struct {
	ID       int64
	Username string // empty when the transport reports none
	IsUser   bool
}

// DeliveryRecord mirrors an Item once it has been forwarded to the
// messaging collaborator at least once, anywhere. Its existence is the
// cross-user, cross-restart suppression signal.
type DeliveryRecord struct {
	ID        string
	Link      string
	MediaHref string
	Title     string
	Author    string
	Ups       int
	Downs     int
}

// FromItem builds the persisted shape of an Item.
func FromItem(it Item) DeliveryRecord {
	return DeliveryRecord{
		ID:        it.ID,
		Link:      it.Link,
		MediaHref: it.MediaHref,
		Title:     it.Title,
		Author:    it.Author,
		Ups:       it.Ups,
		Downs:     it.Downs,
	}
}

// Item reconstructs the Item a delivery record was built from.
func (d DeliveryRecord) Item() Item {
	return Item{
		ID:        d.ID,
		Link:      d.Link,
		MediaHref: d.MediaHref,
		Title:     d.Title,
		Author:    d.Author,
		Ups:       d.Ups,
		Downs:     d.Downs,
	}
}
