// Package hhash provides a handle hash table with reference-counted payloads.
//
// A Table maps opaque 64-bit handles to payloads. The table owns one
// reference from Insert until Delete; every successful Lookup takes another
// that the caller returns with Put. The destroy callback runs exactly once,
// when the last reference is dropped.
//
// Handles encode a per-table type tag in the low bits, so a handle issued by
// one table is never resolved by a table of a different type:
//
//	pools := hhash.New[*Pool](6, TypePool, func(p *Pool) { p.close() })
//	h := pools.Insert(pool)
//	link, ok := pools.Lookup(h)
//	defer pools.Put(link)
//
// Thread Safety:
//
// A single mutex per table guards the buckets and the reference counts. It is
// held only for constant-time bucket operations; the destroy callback always
// runs after the mutex is released.
package hhash
