// Package session
// Author: momentics <momentics@gmail.com>
//
// Session directory partitioned per scheduler. A session is named by an
// identity.Identity; the (index, salt) pair must match the live record
// exactly, so a reused index never resolves to a previous owner's session.
// Each session carries a propagation-aware key/value store and a
// cancellation channel closed on destroy or eviction.

package session
