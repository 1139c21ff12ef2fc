/*
Package ratelimit 多维度滑动窗口限流。

Every request is checked against several independent dimensions at once:

	per_ip        login / upload / strict / api, by client address
	per_user      general, by authenticated user id (role may raise the limit)
	per_endpoint  export / bulk_operations, by user id or client address
	global        system, one counter shared by every client

A request is denied when any selected rule is over its limit. A rule with a
penalty keeps denying the key for the whole penalty, even after the window
has recovered.

Counters live in redis (one sorted set per key, updated by a single Lua
script) so that every replica sees the same counts. When redis cannot be
reached at startup a process-local MemoryBackend is used instead. A redis
failure during a check never blocks traffic: the rule is treated as allowed
and the error is logged.

Storage layout:

	rate_limit:{dimension}:{category}[:{endpoint_slug}]:{identifier}
	rate_limit:{dimension}:{category}[:{endpoint_slug}]:{identifier}:penalty

Example:

	reg := ratelimit.DefaultRegistry()
	sel, _ := ratelimit.NewSelector(reg)
	limiter := ratelimit.New(sel, ratelimit.NewMemory())

	dec := limiter.Evaluate(ctx, ratelimit.Request{ClientIP: "1.2.3.4", Path: "/api/projects"})
	if !dec.Allowed {
		// 429
	}
*/
package ratelimit
