package store

// CurrentBranch returns the name of the checked-out branch. The branch of a
// working copy without commits is the one HEAD points at symbolically.
func (s *Store) CurrentBranch() (string, error) {
	branch, _, _, err := s.currentBranchState()
	if err != nil {
		return "", err
	}
	return branch, nil
}
