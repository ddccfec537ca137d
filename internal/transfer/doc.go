// Package transfer receives upload bodies: it copies an exact byte count from
// a connection into a part file in bounded chunks under an idle timeout, and
// reports interruptions as typed errors that carry the bytes already
// persisted.
package transfer
