// Package events maintains the shared real-time connection to the backend
// and fans incoming processing messages out to per-recording listeners.
package events
