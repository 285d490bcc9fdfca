package domain

const checkRLSStatusSQL = `CREATE OR REPLACE FUNCTION check_rls_status()
RETURNS TABLE (table_name text, has_rls boolean)
LANGUAGE sql
AS $$
  SELECT
    c.relname AS table_name,
    c.relrowsecurity AS has_rls
  FROM pg_class c
  JOIN pg_namespace n ON n.oid = c.relnamespace
  WHERE n.nspname = 'public'
    AND c.relkind = 'r';
$$;`

const checkPITRStatusSQL = `CREATE OR REPLACE FUNCTION check_pitr_status()
RETURNS json
LANGUAGE plpgsql
SECURITY DEFINER
AS $$
DECLARE
  result json;
BEGIN
  SELECT json_build_object(
    'enabled', COALESCE((SELECT setting IN ('on', 'always') FROM pg_settings WHERE name = 'archive_mode'), false),
    'wal_level', (SELECT setting FROM pg_settings WHERE name = 'wal_level'),
    'archive_command', (SELECT setting FROM pg_settings WHERE name = 'archive_command')
  ) INTO result;

  RETURN result;
END;
$$;`

// SetupFunctionName returns the RPC a check type relies on, or "" when the
// check uses the admin API directly.
func SetupFunctionName(ct CheckType) string {
	switch ct {
	case CheckRLS:
		return "check_rls_status"
	case CheckPITR:
		return "check_pitr_status"
	}
	return ""
}

// SetupSQL returns the definition operators install on a target before
// running the given check. MFA needs no helper and returns "".
func SetupSQL(ct CheckType) string {
	switch ct {
	case CheckRLS:
		return checkRLSStatusSQL
	case CheckPITR:
		return checkPITRStatusSQL
	}
	return ""
}
