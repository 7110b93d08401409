package types

// BookReader is implemented by anything that can hand out a consistent Book
type BookReader interface {
	// Book builds a recomputed view of both sides
	Book(opts ViewOptions) Book
}

// FeedController accepts the external control signals of the feed
type FeedController interface {
	// ChangeProduct switches the subscribed product
	ChangeProduct(productID string)

	// KillFeed stops (true) or revives (false) the feed
	KillFeed(killed bool)
}
