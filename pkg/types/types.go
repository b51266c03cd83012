package types

// ResolvedFile is one concrete remote file produced by narrowing a
// catalog selection down to paths.
type ResolvedFile struct {
	Path string
	Size int64
}

// LinkItem is a minted, signed access link for a single remote file.
type LinkItem struct {
	Filename string
	URL      string
	Size     int64
}
