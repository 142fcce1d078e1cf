package common

// RoleGovernance marks addresses qualified to veto new positions and to
// propose base rate changes.
const RoleGovernance = "governance"
