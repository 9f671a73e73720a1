// Package github provisions hackathon team repositories and keeps their
// collaborators in line with the team roster.
//
// The package includes:
// - APIClient, a narrow go-github backed interface for the calls we make
// - Provisioner, which ensures a team repository exists
// - Diff and Reconciler, which compute and apply collaborator changes
// - TeamSyncer, which runs the whole loop across a roster
package github
