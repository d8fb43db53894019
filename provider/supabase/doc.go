// Package supabase implements the account.IdentityClient and
// account.ResourceClient interfaces against a Supabase-compatible backend:
// GoTrue for signup, password/refresh grants, and sign-out; PostgREST for
// schema-scoped tenant and profile writes. Provider error shapes are
// normalized into the account error taxonomy at this boundary so callers
// never branch on provider message formats.
package supabase
