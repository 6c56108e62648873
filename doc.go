// Package succinct provides compressed, queryable representations of byte
// text.
//
// A File indexes an arbitrary byte string and answers random access,
// counting and substring search directly on the compressed form. A Shard
// treats its input as newline-delimited records and adds key-value access
// on top: key k is the k-th record.
//
// Both are backed by a core.Core and can be saved to a directory and opened
// again, either decoded into memory or mapped read-only in place:
//
//	f, err := succinct.NewFile(data)
//	...
//	err = f.Save(dir)
//	...
//	g, err := succinct.OpenFile(dir, core.LoadMemoryMapped)
//	defer g.Close()
//	offsets := g.Search([]byte("needle"))
package succinct
