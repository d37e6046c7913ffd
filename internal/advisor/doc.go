// Package advisor contains the multi-agent planning pipeline: four
// specialized reasoning steps run in a fixed order over the household
// profile, the session's conversation history, and each other's findings,
// followed by a merge invocation that composes the final plan. The package
// owns the atomic commit of conversation turns and the stateless tip
// generator.
package advisor
