// Package lock provides the per-student lease backends: an in-process keyed
// mutex for a single server and a Redis lease (bsm/redislock) for several.
package lock
