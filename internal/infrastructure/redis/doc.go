// Package redis connects authgate to Redis for the shared record cache and
// rate-limit counters.
//
// Every key authgate writes starts with redis.key_prefix so several
// deployments can share one server.
package redis
