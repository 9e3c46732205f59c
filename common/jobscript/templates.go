package jobscript

// Sections of the build job script. Every section is rendered with missingkey=error, shell variables
// are written as-is since only {{...}} is special to the template engine.

const headerSection = `#!/bin/bash -l
#SBATCH --job-name={{.job_name}}
#SBATCH --output="%x-%j.out"
#SBATCH --error="%x-%j.err"
#SBATCH --time={{.walltime}}
#SBATCH --nodes={{.nodes}}
#SBATCH --ntasks={{.tasks}}
#SBATCH --gpus-per-node={{.gpus}}
#SBATCH --partition={{.partition}}

test -n "$PREFIX_EB" || { echo "ERROR: environment variable PREFIX_EB not set"; exit 1; }

# set environment`

const dummyModulesSection = `export BUILD_TOOLS_LOAD_DUMMY_MODULES=1`

const environmentSection = `export LANG={{.langcode}}
export PATH=$PREFIX_EB/easybuild-framework:$PATH
export PYTHONPATH=$PREFIX_EB/easybuild-easyconfigs:$PREFIX_EB/easybuild-easyblocks:$PREFIX_EB/easybuild-framework:$PREFIX_EB/vsc-base/lib

# make build directory
if [ -z $SLURM_JOB_ID ]; then
    export TMPDIR={{.tmp}}/$USER/
fi
mkdir -p $TMPDIR
mkdir -p {{.eb_buildpath}}`

const crossCompileSection = `
# update MODULEPATH for cross-compilations
local_arch="$VSC_ARCH_LOCAL$VSC_ARCH_SUFFIX"
if [ "{{.target_arch}}" != "$local_arch" ]; then
    export MODULEPATH=${MODULEPATH//$local_arch/{{.target_arch}}}
fi`

const ebSection = `
EB='eb'`

const sandboxWrapperSection = `
echo "BUILD_TOOLS: installing with bwrap"
output=$(EASYBUILD_ROBOT_PATHS={{.robot_paths}} EASYBUILD_IGNORE_INDEX=1 ec2ml.py {{.easyconfig}}) || { echo "ERROR: ec2ml.py failed"; exit 1; }
echo "BUILD_TOOLS: ec2ml.py output: $output"
while read -r key value; do
    [ "$key" == "full_mod_name" ] && { modname=${value%/*}; modversion=${value##*/}; }
done <<< "$output"
echo "BUILD_TOOLS: modname $modname modversion $modversion"
[[ -n $modname && -n $modversion ]] || { echo "ERROR: failed to get modname and/or modversion"; exit 1; }
appsmnt="{{.apps_real_root}}"
softbwrap="{{.apps_root}}/bwrap/$VSC_OS_LOCAL/{{.target_arch}}/software/$modname"
softreal="$appsmnt/$VSC_OS_LOCAL/{{.target_arch}}/software/$modname"
modbwrap="{{.apps_root}}/$VSC_OS_LOCAL/{{.target_arch}}/{{.subdir_modules_bwrap}}/all/$modname"
mkdir -p "$softbwrap"
mkdir -p "$modbwrap"
bwrap_cmd=(
    bwrap
    --bind / /
    --bind "$softbwrap" "$softreal"
    --dev /dev
    --bind /dev/log /dev/log
)
EB="${bwrap_cmd[*]} $EB"
echo "BUILD_TOOLS: bwrap eb command: $EB"`

const buildSection = `
eb_stderr=$(mktemp).eb_stderr
$EB {{.eb_args}} 2>"$eb_stderr"

ec=$?
cat "$eb_stderr" >>/dev/stderr

if [ $ec -ne 0 ]; then
    echo "BUILD_TOOLS: EasyBuild exited with non-zero exit code ($ec)" >>/dev/stderr
    if [ -n "$SLURM_JOB_ID" ]; then
        rm -rf {{.eb_buildpath}}
    fi
    exit $ec
fi`

const sandboxRelocateSection = `
dest_modfile=$(grep "^BUILD_TOOLS: real_mod_filepath" "$eb_stderr" | cut -d " " -f 3) || { echo "ERROR: failed to obtain destination module file path"; exit 1; }
source_installdir="$softbwrap/$modversion/"
dest_installdir="$softreal/$modversion/"
source_modfile="$modbwrap/$modversion.lua"
echo "BUILD_TOOLS: source/destination install dir: $source_installdir $dest_installdir"
echo "BUILD_TOOLS: source/destination module file: $source_modfile $dest_modfile"
test -d "$source_installdir" || { echo "ERROR: source install dir does not exist"; exit 1; }
test -n "$(ls -A $source_installdir)" || { echo "ERROR: source install dir is empty"; exit 1; }
test -s "$source_modfile" || { echo "ERROR: source module file does not exist or is empty"; exit 1; }
rsync -a --link-dest="$source_installdir" "$source_installdir" "$dest_installdir" || { echo "ERROR: failed to copy install dir"; exit 1; }
rsync -a --link-dest="$modbwrap" "$source_modfile" "$dest_modfile" || { echo "ERROR: failed to copy module file"; exit 1; }
rm -rf "$source_installdir" "$source_modfile"
echo "BUILD_TOOLS: installation moved from bwrap to real location"`

const cacheTriggerSection = `
builds_succeeded=$(grep "^BUILD_TOOLS: builds_succeeded" "$eb_stderr")
if [ -n "$builds_succeeded" ]; then
    job_options=(
        --time={{.cache_walltime}}
        --mem={{.cache_mem}}
        --output=%x_%j.log
        --job-name={{.cache_job_name}}
        --dependency=singleton
        --partition={{.partition}}
    )
    cmd=(
        {{.lmod_cache_cmd}}
        --create-cache
        --architecture {{.target_arch}}
        --module-basedir {{.apps_root}}/$VSC_OS_LOCAL
    )
    echo "BUILD_TOOLS: submitting Lmod cache update job on partition {{.partition}} for architecture {{.target_arch}}"
    sbatch "${job_options[@]}" --wrap "${cmd[*]}" || echo "WARNING: could not submit Lmod cache update job" >>/dev/stderr
fi`

const cacheJobScript = `#!/bin/bash
#SBATCH --time={{.cache_walltime}}
#SBATCH --mem={{.cache_mem}}
#SBATCH --output=%x_%j.log
#SBATCH --job-name={{.cache_job_name}}
#SBATCH --dependency=singleton{{.depends_on}}
#SBATCH --partition={{.partition}}
{{.lmod_cache_cmd}} --create-cache --architecture {{.arch}} --module-basedir {{.apps_root}}/$VSC_OS_LOCAL`
