// Package discovery mines development-activity patterns for a project.
//
// A discovery session covers one commit range of one project. The
// Coordinator loads the activity snapshot once and hands it to every miner:
//
//  1. cooccurrence - market-basket analysis over files changed together
//  2. temporal - chi-square rhythm tests per calendar dimension
//  3. developer - specialization, velocity, collaboration and silo risk
//  4. change_magnitude - per-file churn, anomaly, hotspot and risk scores
//
// Miners write disjoint pattern tables and have no ordering between them,
// so they run in parallel. The insight synthesizer runs after all of them
// have returned.
//
// # Sessions
//
// A project has at most one running session. Re-running the same range and
// algorithm version returns the existing session instead of mining again;
// Request.Refresh re-mines a completed session in place. Completing a
// session outdates earlier completed sessions whose range it covers.
//
// If any miner fails the session is marked failed. Pattern rows already
// written by the other miners stay queryable.
//
// # Presets
//
//	quick:    cooccurrence, change_magnitude
//	standard: all miners
//	custom:   Config.Miners
//
// # Algorithm versions
//
// Sessions record the semver algorithm version that produced them. Bump
// DefaultAlgorithmVersion when a miner's output changes for the same input,
// so old sessions are not reused for the new algorithm.
package discovery
