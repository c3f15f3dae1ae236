// Package notifier fans a message out to emergency contacts across every
// configured channel.
//
// Dispatch is parallel and independent, one contact or channel failing
// never prevents attempts on the others. The fan-out succeeds when at least
// one contact receives the message on at least one channel.
package notifier
