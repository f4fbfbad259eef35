// Package session resolves which of a user's linked accounts is active.
//
// A Manager watches the student-scoped and teacher-scoped account
// queries for one signed-in contact identity and reconciles the durably
// cached active-account id against the live results: a cached id that
// still matches wins, otherwise the first student (else first teacher)
// is selected and that fallback is persisted before it becomes visible.
// Explicit switches via Select follow the same persist-then-notify
// ordering, so a restart always lands on the account the user last saw.
package session
