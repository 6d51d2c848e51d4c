package level

import (
	"github.com/webidx/ftindex/internal/posting"
	"github.com/webidx/ftindex/internal/shard"
)

// basicCodec/countedCodec/linkCodec are the shared Codec values every level
// in this package builds its shard.Builder/Readers with.
var basicCodec = shard.Codec[posting.Basic]{Size: posting.BasicSize, Decode: posting.DecodeBasic}
var countedCodec = shard.Codec[posting.Counted]{Size: posting.CountedSize, Decode: posting.DecodeCounted}
var linkCodec = shard.Codec[posting.Link]{Size: posting.LinkSize, Decode: posting.DecodeLink}
